package ycsb

import (
	"math/rand"
	"strings"
	"time"
)

const (
	ConfigBasicDBVerbose        = "basicdb.verbose"
	ConfigBasicDBVerboseDefault = true
	ConfigSimulateDelay         = "basicdb.simulatedelay"
	ConfigSimulateDelayDefault  = 0
	ConfigRandomizeDelay        = "basicdb.randomizedelay"
	ConfigRandomizeDelayDefault = true
)

func ConcatFieldsStr(fields []string) string {
	if len(fields) == 0 {
		return "<all fields>"
	}
	return strings.Join(fields, ", ")
}

func ConcatKVStr(values KVMap) string {
	var ret string
	afterFirst := false
	for k, v := range values {
		if afterFirst {
			ret += ", "
		} else {
			afterFirst = true
		}
		ret += (k + "=" + string(v))
	}
	return ret
}

// BasicDB echoes all operations to stdout instead of talking to a real
// database. Useful for debugging a workload without a server.
type BasicDB struct {
	*DBBase
	verbose        bool
	randomizeDelay bool
	toDelay        int64
}

func NewBasicDB() *BasicDB {
	return &BasicDB{
		DBBase: NewDBBase(),
	}
}

func (self *BasicDB) Delay() {
	if self.toDelay > 0 {
		millis := self.toDelay
		if self.randomizeDelay {
			millis = rand.Int63n(self.toDelay)
			if millis == 0 {
				return
			}
		}
		time.Sleep(time.Duration(millis) * time.Millisecond)
	}
}

// Initialize any state for this DB.
func (self *BasicDB) Init() error {
	p := self.GetProperties()
	self.verbose = p.GetBool(ConfigBasicDBVerbose, ConfigBasicDBVerboseDefault)
	self.toDelay = int64(p.GetInt(ConfigSimulateDelay, ConfigSimulateDelayDefault))
	self.randomizeDelay = p.GetBool(ConfigRandomizeDelay, ConfigRandomizeDelayDefault)
	if self.verbose && p != nil {
		Printf("***************** properties *****************")
		for _, k := range p.Keys() {
			v, _ := p.Get(k)
			Printf("\"%s\"=\"%s\"", k, v)
		}
		Printf("**********************************************")
	}
	return nil
}

func (self *BasicDB) Cleanup() error {
	return nil
}

// Read a record from the database.
func (self *BasicDB) Read(table string, key string, fields []string) (KVMap, StatusType) {
	self.Delay()
	if self.verbose {
		Printf("READ %s %s [%s]", table, key, ConcatFieldsStr(fields))
	}
	return nil, StatusOK
}

// Perform a range scan for a set of records in the database.
func (self *BasicDB) Scan(table string, startKey string, recordCount int64, fields []string) ([]KVMap, StatusType) {
	self.Delay()
	if self.verbose {
		Printf("SCAN %s %s %d [%s]", table, startKey, recordCount, ConcatFieldsStr(fields))
	}
	return nil, StatusOK
}

// Update a record in the database.
func (self *BasicDB) Update(table string, key string, values KVMap) StatusType {
	self.Delay()
	if self.verbose {
		Printf("UPDATE %s %s [%s]", table, key, ConcatKVStr(values))
	}
	return StatusOK
}

// Insert a record in the database.
func (self *BasicDB) Insert(table string, key string, values KVMap) StatusType {
	self.Delay()
	if self.verbose {
		Printf("INSERT %s %s [%s]", table, key, ConcatKVStr(values))
	}
	return StatusOK
}

// Delete a record from the database.
func (self *BasicDB) Delete(table string, key string) StatusType {
	self.Delay()
	if self.verbose {
		Printf("DELETE %s %s", table, key)
	}
	return StatusOK
}
