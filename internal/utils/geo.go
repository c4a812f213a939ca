package utils

import (
	"github.com/golang/geo/s2"

	"civicfix-api/internal/models"
)

// Mean Earth radius in meters, as used by the s2 reference material.
const earthRadiusMeters = 6371010.0

// DistanceMeters returns the great-circle distance between two coordinate
// pairs in meters.
func DistanceMeters(a, b models.Coordinates) float64 {
	p := s2.LatLngFromDegrees(a.Lat, a.Lon)
	q := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p.Distance(q).Radians() * earthRadiusMeters
}
