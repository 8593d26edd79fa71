package binding

import (
	ycsb "github.com/meticulous-dft/YCSB"
)

func AddBindings() {
	ycsb.Databases["mongodb"] = func() ycsb.DB {
		return NewMongoDB()
	}
}
