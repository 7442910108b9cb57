package repository

import (
	"math"

	"github.com/okian/civicflow/internal/domain/model"
)

const earthRadiusMeters = 6_371_000.0

// distanceMeters is the haversine great-circle distance between two points.
func distanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

func inBounds(loc, sw, ne model.Location) bool {
	return loc.Lat() >= sw.Lat() && loc.Lat() <= ne.Lat() &&
		loc.Lng() >= sw.Lng() && loc.Lng() <= ne.Lng()
}

// pageBounds converts a 1-based page into slice offsets over n items.
func pageBounds(page, size, n int) (int, int) {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}
