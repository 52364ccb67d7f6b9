package lrs

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("lower_right")
	require.NoError(t, err)
	assert.Equal(t, LowerRight, p)

	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, UpperLeft, p)

	_, err = ParsePriority("middle")
	assert.Error(t, err)
}

func TestChain_OrientsFromCorner(t *testing.T) {
	// Digitized east to west; upper-left priority starts at the west end.
	parts := []orb.LineString{{{100, 0}, {0, 0}}}
	chained := Chain(parts, UpperLeft)
	require.Len(t, chained, 1)
	assert.Equal(t, orb.Point{0, 0}, chained[0][0])

	chained = Chain(parts, LowerRight)
	assert.Equal(t, orb.Point{100, 0}, chained[0][0])
}

func TestChain_OrdersParts(t *testing.T) {
	parts := []orb.LineString{
		{{60, 0}, {100, 0}},
		{{50, 0}, {0, 0}},
	}
	chained := Chain(parts, LowerLeft)
	require.Len(t, chained, 2)
	assert.Equal(t, orb.LineString{{0, 0}, {50, 0}}, chained[0])
	assert.Equal(t, orb.LineString{{60, 0}, {100, 0}}, chained[1])
}

func TestMeasureParts_IgnoresGaps(t *testing.T) {
	line, m, gaps := MeasureParts([]orb.LineString{
		{{0, 0}, {50, 0}},
		{{60, 0}, {100, 0}},
	})
	assert.Equal(t, orb.LineString{{0, 0}, {50, 0}, {60, 0}, {100, 0}}, line)
	assert.Equal(t, []float64{0, 50, 50, 90}, m)
	assert.Equal(t, Gaps{1}, gaps)
}

func TestMeasureParts_ConnectedPartsShareVertex(t *testing.T) {
	line, m, gaps := MeasureParts([]orb.LineString{
		{{0, 0}, {50, 0}},
		{{50, 0}, {100, 0}},
	})
	assert.Equal(t, orb.LineString{{0, 0}, {50, 0}, {100, 0}}, line)
	assert.Equal(t, []float64{0, 50, 100}, m)
	assert.Nil(t, gaps)
}
