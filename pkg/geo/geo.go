// Package geo provides geographic utility functions for ride dispatch.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// The Postgres and Mongo stores delegate radius filtering to their native
// spatial indexes; these helpers back the in-memory store and input validation.
package geo

import (
	"math"

	"github.com/shiva/medride/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// EarthRadiusM is the mean radius of Earth in meters.
	EarthRadiusM = 6_371_000.0

	// MetersPerMile converts statute miles to meters.
	MetersPerMile = 1609.344
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b model.Point) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b model.Point) float64 {
	return HaversineKm(a, b) * 1000.0
}

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(a, b model.Point) float64 {
	return HaversineM(a, b) / MetersPerMile
}

// Within reports whether b lies within radiusM meters of a.
func Within(a, b model.Point, radiusM float64) bool {
	return HaversineM(a, b) <= radiusM
}

// ─── Validation ─────────────────────────────────────────────

// Valid reports whether p is a finite coordinate with lon in [-180,180] and lat in [-90,90].
func Valid(p model.Point) bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return false
	}
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
