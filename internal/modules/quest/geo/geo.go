// Package geo orders candidate stops into a walkable route.
package geo

import (
	"math"

	"github.com/yungbote/questweaver/internal/domain/quest"
)

const (
	EarthRadiusMeters = 6371000.0
	// MaxInterStopMeters caps the walk between consecutive stops.
	MaxInterStopMeters = 800.0
)

// Distance is the haversine great-circle distance in meters.
func Distance(a, b quest.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// FilterByRadius keeps spots within radiusMeters of origin. If nothing
// survives, the unfiltered list is returned and filtered is false.
func FilterByRadius(spots []quest.SpotInput, origin quest.LatLng, radiusMeters float64) (out []quest.SpotInput, filtered bool) {
	if radiusMeters <= 0 {
		return spots, false
	}
	for _, s := range spots {
		if Distance(origin, s.Location()) <= radiusMeters {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return spots, false
	}
	return out, true
}

// ChainNearest starts at spots[0] and repeatedly appends the nearest unused
// spot, stopping once that spot is farther than maxStepMeters away.
func ChainNearest(spots []quest.SpotInput, maxStepMeters float64) []quest.SpotInput {
	if len(spots) == 0 {
		return nil
	}
	if maxStepMeters <= 0 {
		maxStepMeters = MaxInterStopMeters
	}
	used := make([]bool, len(spots))
	chain := []quest.SpotInput{spots[0]}
	used[0] = true
	current := spots[0]
	for len(chain) < len(spots) {
		best := -1
		bestDist := math.Inf(1)
		for i, s := range spots {
			if used[i] {
				continue
			}
			if d := Distance(current.Location(), s.Location()); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 || bestDist > maxStepMeters {
			break
		}
		used[best] = true
		current = spots[best]
		chain = append(chain, current)
	}
	return chain
}
