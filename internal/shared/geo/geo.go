// Package geo holds the point types and great-circle math shared by the
// tracking, course and map packages. Distances are meters unless the
// function name says otherwise.
package geo

import (
	"math"
	"time"
)

const (
	EarthRadiusM  = 6371000.0
	EarthRadiusKm = 6371.0
)

// Point is a single recorded position. Nil Elevation and Time mean the
// source did not report them.
type Point struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Elevation *float64   `json:"elevation_m,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
}

// Track is an ordered sequence of points, oldest first.
type Track []Point

func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func ToDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Float returns a pointer to v, for optional elevation fields.
func Float(v float64) *float64 {
	return &v
}

// HaversineMeters returns the great-circle distance between a and b.
func HaversineMeters(a, b Point) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng) * EarthRadiusM
}

// HaversineKm is the kilometre variant used at presentation boundaries.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return haversine(lat1, lng1, lat2, lng2) * EarthRadiusKm
}

// haversine returns the central angle in radians.
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := ToRadians(lat2 - lat1)
	dLng := ToRadians(lng2 - lng1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(ToRadians(lat1))*math.Cos(ToRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h a hair outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// InitialBearing returns the forward azimuth from a to b in [0, 360).
// Identical points yield 0.
func InitialBearing(a, b Point) float64 {
	if a.Lat == b.Lat && a.Lng == b.Lng {
		return 0
	}
	lat1 := ToRadians(a.Lat)
	lat2 := ToRadians(b.Lat)
	dLng := ToRadians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return NormalizeDegrees(ToDegrees(math.Atan2(y, x)))
}

// NormalizeDegrees maps any angle onto [0, 360).
func NormalizeDegrees(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// DistanceMeters sums the haversine distance between consecutive points.
func (t Track) DistanceMeters() float64 {
	if len(t) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(t); i++ {
		total += HaversineMeters(t[i-1], t[i])
	}
	return total
}

// Valid reports whether the coordinates are inside the WGS84 ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!math.IsNaN(p.Lat) && !math.IsNaN(p.Lng)
}
