package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceIdentity(t *testing.T) {
	p := Point{Latitude: 12.9716, Longitude: 77.5946}
	d, err := Distance(p, p)
	require.NoError(t, err)
	assert.Equal(t, 0.0, d)
}

func TestDistanceSymmetry(t *testing.T) {
	a := Point{Latitude: 12.9716, Longitude: 77.5946}
	b := Point{Latitude: 13.0827, Longitude: 80.2707}
	d1, err := Distance(a, b)
	require.NoError(t, err)
	d2, err := Distance(b, a)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDistanceKnownValue(t *testing.T) {
	// One hundredth of a degree of latitude is roughly 1.11 km.
	a := Point{Latitude: 12.9716, Longitude: 77.5946}
	b := Point{Latitude: 12.9816, Longitude: 77.5946}
	d, err := Distance(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1112, d, 3)
}

func TestDistanceNonFinite(t *testing.T) {
	a := Point{Latitude: math.NaN(), Longitude: 77.5946}
	b := Point{Latitude: 12.9716, Longitude: 77.5946}
	_, err := Distance(a, b)
	require.Error(t, err)

	a = Point{Latitude: math.Inf(1), Longitude: 0}
	_, err = Distance(a, b)
	require.Error(t, err)
}

func TestVerifyWithinRange(t *testing.T) {
	anchor := Point{Latitude: 12.9716, Longitude: 77.5946}
	res, err := Verify(anchor, anchor, 150)
	require.NoError(t, err)
	assert.True(t, res.WithinRange)
	assert.Equal(t, 0.0, res.DistanceM)
}

func TestVerifyOutsideRange(t *testing.T) {
	anchor := Point{Latitude: 12.9716, Longitude: 77.5946}
	pos := Point{Latitude: 12.9816, Longitude: 77.5946}
	res, err := Verify(anchor, pos, 150)
	require.NoError(t, err)
	assert.False(t, res.WithinRange)
	assert.Greater(t, res.DistanceM, 1000.0)
}

func TestVerifyBoundaryInclusive(t *testing.T) {
	anchor := Point{Latitude: 0, Longitude: 0}
	pos := Point{Latitude: 0, Longitude: 0.001}
	d, err := Distance(anchor, pos)
	require.NoError(t, err)

	res, err := Verify(anchor, pos, d)
	require.NoError(t, err)
	assert.True(t, res.WithinRange)

	res, err = Verify(anchor, pos, d-1)
	require.NoError(t, err)
	assert.False(t, res.WithinRange)
}

func TestVerifyNegativeRadius(t *testing.T) {
	anchor := Point{Latitude: 0, Longitude: 0}
	_, err := Verify(anchor, anchor, -1)
	require.Error(t, err)
}
