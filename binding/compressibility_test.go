package binding

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/snappy"
	"github.com/hhkbp2/testify/require"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func randomPayload(length int) []byte {
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

func TestApplyCompressibilityNoOp(t *testing.T) {
	original := randomPayload(100)
	data := make([]byte, len(original))
	copy(data, original)
	out := applyCompressibility(data, 1.0)
	require.Equal(t, original, out)
}

func TestApplyCompressibilitySplit(t *testing.T) {
	length := 100
	ratio := 4.0
	original := randomPayload(length)
	data := make([]byte, length)
	copy(data, original)

	out := applyCompressibility(data, ratio)
	require.Equal(t, length, len(out))

	randomLength := int(math.Round(float64(length) / ratio))
	compressibleLength := length - randomLength
	for i := 0; i < compressibleLength; i++ {
		require.Equal(t, compressibleFiller, out[i])
	}
	require.Equal(t, original[compressibleLength:], out[compressibleLength:])
}

func TestApplyCompressibilityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("filler prefix is exactly L-round(L/r) bytes and the tail is untouched", prop.ForAll(
		func(length int, ratio float64) bool {
			original := randomPayload(length)
			data := make([]byte, length)
			copy(data, original)

			out := applyCompressibility(data, ratio)
			if len(out) != length {
				return false
			}

			randomLength := int(math.Round(float64(length) / ratio))
			compressibleLength := length - randomLength
			for i := 0; i < compressibleLength; i++ {
				if out[i] != compressibleFiller {
					return false
				}
			}
			return bytes.Equal(original[compressibleLength:], out[compressibleLength:])
		},
		gen.IntRange(0, 4096),
		gen.Float64Range(1.0, 32.0),
	))

	properties.TestingRun(t)
}

// A payload reshaped for ratio r should actually compress better than an
// untouched one; cross-check against a real compressor.
func TestApplyCompressibilityAgainstSnappy(t *testing.T) {
	length := 8192
	incompressible := randomPayload(length)

	tenfold := make([]byte, length)
	copy(tenfold, incompressible)
	applyCompressibility(tenfold, 10.0)

	rawSize := len(snappy.Encode(nil, incompressible))
	reshapedSize := len(snappy.Encode(nil, tenfold))
	require.True(t, reshapedSize < rawSize)
	// the constant prefix is 90% of the payload, so at least half the bytes
	// must come off after compression
	require.True(t, reshapedSize < length/2)
}

func TestOverrideDataIfDiscrete(t *testing.T) {
	cfg := &mongoConfig{}
	var err error
	cfg.discreteFields, err = createDiscreteFieldsMap("4")
	require.Nil(t, err)

	// no generator configured for this field: payload passes through
	payload := randomPayload(50)
	out := cfg.overrideDataIfDiscrete("field1", payload)
	require.Equal(t, payload, out)

	// short discrete value is right-padded to the requested length
	out = cfg.overrideDataIfDiscrete("field0", make([]byte, 20))
	require.Equal(t, 20, len(out))
	require.Equal(t, []byte("value"), out[:5])
	for _, b := range out[6:] {
		require.Equal(t, discretePadFiller, b)
	}

	// a discrete value at least as long as the payload is used verbatim,
	// never truncated
	out = cfg.overrideDataIfDiscrete("field0", make([]byte, 3))
	require.Equal(t, 6, len(out))
}

func TestDiscreteOverrideSamplesOnlyConfiguredValues(t *testing.T) {
	cfg := &mongoConfig{}
	var err error
	cfg.discreteFields, err = createDiscreteFieldsMap("3")
	require.Nil(t, err)

	expected := map[string]bool{"value0": true, "value1": true, "value2": true}
	for i := 0; i < 1000; i++ {
		out := cfg.overrideDataIfDiscrete("field0", make([]byte, 6))
		require.True(t, expected[string(out)])
	}
}
