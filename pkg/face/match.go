// Package face compares fixed-length face embeddings by Euclidean distance.
// Embeddings arrive from the client capture pipeline; the server never
// fabricates a vector.
package face

import (
	"fmt"
	"math"
)

// MatchResult carries the similarity outcome of one comparison.
type MatchResult struct {
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
	Match      bool    `json:"match"`
}

// Compare computes the Euclidean distance between two embeddings of equal
// length and normalises it into a confidence score in [0, 1]:
//
//	confidence = max(0, 1 - d/sqrt(N))
//
// The normalisation assumes components bounded in [-1, 1]. A length mismatch
// is an error, never a silent non-match.
func Compare(reference, captured []float64, threshold float64) (MatchResult, error) {
	if len(reference) == 0 || len(captured) == 0 {
		return MatchResult{}, fmt.Errorf("empty embedding")
	}
	if len(reference) != len(captured) {
		return MatchResult{}, fmt.Errorf("embedding length mismatch: %d vs %d", len(reference), len(captured))
	}

	var sum float64
	for i := range reference {
		diff := reference[i] - captured[i]
		sum += diff * diff
	}
	d := math.Sqrt(sum)

	confidence := 1 - d/math.Sqrt(float64(len(reference)))
	if confidence < 0 {
		confidence = 0
	}

	return MatchResult{
		Distance:   d,
		Confidence: confidence,
		Match:      confidence >= threshold,
	}, nil
}

// ValidateCapture rejects ambiguous captures: a frame must contain exactly
// one detected face and the embedding must have the expected dimension.
func ValidateCapture(embedding []float64, facesDetected, expectedDim int) error {
	if facesDetected == 0 {
		return fmt.Errorf("no face detected in capture")
	}
	if facesDetected > 1 {
		return fmt.Errorf("%d faces detected, expected exactly one", facesDetected)
	}
	if expectedDim > 0 && len(embedding) != expectedDim {
		return fmt.Errorf("embedding has %d components, expected %d", len(embedding), expectedDim)
	}
	for _, v := range embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("embedding contains non-finite component")
		}
	}
	return nil
}
