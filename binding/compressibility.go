package binding

import (
	"math"
)

const (
	// compressibleFiller overwrites the prefix every payload gives up to
	// compression.
	compressibleFiller byte = 'a'
	// discretePadFiller right-pads a short discrete value to the requested
	// payload length.
	discretePadFiller byte = 'x'
)

// applyCompressibility reshapes data so that it compresses by roughly the
// configured ratio: the first L-round(L/r) bytes become a constant filler and
// the rest keeps its (presumed random) content. r = 1 leaves the payload
// untouched. The slice is modified in place.
func applyCompressibility(data []byte, compressibility float64) []byte {
	length := len(data)
	randomLength := int(math.Round(float64(length) / compressibility))
	compressibleLength := length - randomLength
	for i := 0; i < compressibleLength; i++ {
		data[i] = compressibleFiller
	}
	return data
}

// overrideDataIfDiscrete swaps data for a sampled bounded-cardinality value
// when field has a configured generator. The sampled value is used verbatim
// when it is at least as long as the requested payload; otherwise it is
// padded to the requested length. Truncation never happens.
//
// NextString() only reads the generator and draws from a locked random
// source, so there is no need to synchronize this function.
func (cfg *mongoConfig) overrideDataIfDiscrete(field string, data []byte) []byte {
	gen, ok := cfg.discreteFields[field]
	if !ok {
		return data
	}
	discrete := []byte(gen.NextString())
	if len(discrete) >= len(data) {
		return discrete
	}
	padded := make([]byte, len(data))
	copy(padded, discrete)
	for i := len(discrete); i < len(padded); i++ {
		padded[i] = discretePadFiller
	}
	return padded
}
