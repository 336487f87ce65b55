package face

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIdenticalEmbeddings(t *testing.T) {
	emb := make([]float64, 128)
	res, err := Compare(emb, emb, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Distance)
	assert.Equal(t, 1.0, res.Confidence)
	assert.True(t, res.Match)
}

func TestCompareLengthMismatch(t *testing.T) {
	_, err := Compare(make([]float64, 128), make([]float64, 64), 0.6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length mismatch")
}

func TestCompareEmpty(t *testing.T) {
	_, err := Compare(nil, make([]float64, 128), 0.6)
	require.Error(t, err)
}

func TestCompareDistantEmbeddings(t *testing.T) {
	a := make([]float64, 128)
	b := make([]float64, 128)
	for i := range b {
		a[i] = 1
		b[i] = -1
	}
	res, err := Compare(a, b, 0.6)
	require.NoError(t, err)
	// Full-scale opposition: d = 2*sqrt(128), confidence clamps at zero.
	assert.InDelta(t, 2*math.Sqrt(128), res.Distance, 1e-9)
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.Match)
}

func TestCompareThresholdBoundary(t *testing.T) {
	a := make([]float64, 4)
	b := []float64{0.8, 0, 0, 0}
	// d = 0.8, sqrt(4) = 2, confidence = 0.6 exactly.
	res, err := Compare(a, b, 0.6)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.True(t, res.Match)
}

func TestValidateCapture(t *testing.T) {
	emb := make([]float64, 128)

	require.NoError(t, ValidateCapture(emb, 1, 128))

	err := ValidateCapture(emb, 0, 128)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no face")

	err = ValidateCapture(emb, 3, 128)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 faces")

	err = ValidateCapture(make([]float64, 64), 1, 128)
	require.Error(t, err)

	bad := make([]float64, 128)
	bad[7] = math.NaN()
	err = ValidateCapture(bad, 1, 128)
	require.Error(t, err)
}
