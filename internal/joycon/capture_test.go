package joycon

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single", []float64{7}, 7},
		{"odd", []float64{1, 2, 3, 4, 5}, 3},
		{"even", []float64{1, 2, 3, 4}, 2.5},
		{"unsorted", []float64{5, 1, 4, 2, 3}, 3},
		{"duplicates", []float64{2, 2, 2, 9, 1, 2}, 2},
		{"reversed even", []float64{8, 6, 4, 2}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := slices.Clone(tt.in)
			assert.Equal(t, tt.want, Median(tt.in))
			assert.Equal(t, in, tt.in, "input must not be reordered")
		})
	}
}

func TestMedianMatchesSort(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for n := 1; n < 60; n++ {
		xs := make([]float64, n)
		for i := range xs {
			xs[i] = float64(r.IntN(50))
		}
		sorted := slices.Clone(xs)
		slices.Sort(sorted)
		want := sorted[n/2]
		if n%2 == 0 {
			want = (sorted[n/2-1] + sorted[n/2]) / 2
		}
		assert.Equal(t, want, Median(xs), "n=%d", n)
	}
}

func TestCapture(t *testing.T) {
	var c Capture
	c.Add(StickRaw{X: 1, Y: 1}, StickRaw{})
	_, ok := c.Stop()
	assert.False(t, ok, "samples outside a capture are ignored")

	c.Start()
	assert.True(t, c.Active())
	for _, v := range []uint16{0x7F0, 0x800, 0x810, 0x805, 0x7FF} {
		c.Add(StickRaw{X: v, Y: v + 1}, StickRaw{X: 0x900, Y: 0x700})
	}
	res, ok := c.Stop()
	require.True(t, ok)
	assert.False(t, c.Active())
	assert.Equal(t, 5, res.Samples)
	assert.Equal(t, StickRaw{X: 0x800, Y: 0x801}, res.Left)
	assert.Equal(t, StickRaw{X: 0x900, Y: 0x700}, res.Right)

	c.Start()
	_, ok = c.Stop()
	assert.False(t, ok, "empty capture")
}
