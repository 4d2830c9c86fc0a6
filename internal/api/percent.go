package api

import "math"

// ClampPercent bounds p to [0,100]; NaN becomes 0.
func ClampPercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}
