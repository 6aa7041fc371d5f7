package utils

import (
	"github.com/golang/geo/s2"
)

const EarthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance in kilometers between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusKm
}

// IsValidCoordinate checks if latitude and longitude values are valid
func IsValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// TravelMinutes converts a distance to minutes at a constant average speed.
func TravelMinutes(km, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return km / speedKmh * 60
}
