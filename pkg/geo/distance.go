package geo

import (
	"fmt"
	"math"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether both components are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Latitude) && !math.IsInf(p.Latitude, 0) &&
		!math.IsNaN(p.Longitude) && !math.IsInf(p.Longitude, 0)
}

// VerifyResult carries the computed distance and the range decision.
type VerifyResult struct {
	DistanceM      float64 `json:"distance_m"`
	WithinRange    bool    `json:"within_range"`
	AllowedRadiusM float64 `json:"allowed_radius_m"`
}

// Distance returns the great-circle distance between two points in meters,
// rounded to the nearest meter.
func Distance(a, b Point) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, fmt.Errorf("non-finite coordinate")
	}

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return math.Round(earthRadiusM * c), nil
}

// Verify computes the distance from anchor to pos and compares it against the
// allowed radius in meters. The boundary is inclusive: a point exactly at the
// radius is within range.
func Verify(anchor, pos Point, radiusM float64) (VerifyResult, error) {
	if radiusM < 0 {
		return VerifyResult{}, fmt.Errorf("negative radius %f", radiusM)
	}
	d, err := Distance(anchor, pos)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		DistanceM:      d,
		WithinRange:    d <= radiusM,
		AllowedRadiusM: radiusM,
	}, nil
}
