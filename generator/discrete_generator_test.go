package generator

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/hhkbp2/testify/require"
)

func TestDiscreteGenerator(t *testing.T) {
	var g Generator
	dg := NewDiscreteGenerator()
	g = dg
	startWeight := float64(1.0)
	total := 4
	for i := 0; i < total; i++ {
		dg.AddValue(startWeight, fmt.Sprintf("%g", startWeight+float64(i)))
	}
	for i := 0; i < total; i++ {
		n := g.NextString()
		v, err := strconv.ParseFloat(n, 64)
		require.Nil(t, err)
		require.True(t, v < startWeight+float64(total))
	}
	last := g.LastString()
	require.Equal(t, last, g.LastString())
}

func TestDiscreteGeneratorUniform(t *testing.T) {
	dg := NewDiscreteGenerator()
	total := 5
	for i := 0; i < total; i++ {
		dg.AddValue(1, fmt.Sprintf("value%d", i))
	}
	seen := make(map[string]int)
	for i := 0; i < 10000; i++ {
		seen[dg.NextString()]++
	}
	require.Equal(t, total, len(seen))
	for i := 0; i < total; i++ {
		count := seen[fmt.Sprintf("value%d", i)]
		require.True(t, count > 0)
	}
}
