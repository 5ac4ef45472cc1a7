// Package match performs exact nearest-neighbor identity matching over a
// gallery snapshot. Exactness is a correctness requirement here, so the scan
// is linear over all reference embeddings; galleries stay small enough that
// no index structure is needed.
package match

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// Result is the outcome of matching one observed embedding.
// Name and Key are set only when Matched.
type Result struct {
	Key      string  `json:"key,omitempty"`
	Name     string  `json:"name,omitempty"`
	Distance float64 `json:"distance"`
	Matched  bool    `json:"matched"`
}

// EuclideanDistance computes the Euclidean distance between two vectors,
// accumulating in float64. Returns +Inf for mismatched or empty input.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match scans every reference embedding of every identity in the gallery's
// frozen order. The identity owning the globally minimum distance is the
// candidate; it matches when that distance is within tolerance. Ties resolve
// to the first identity in the gallery's iteration order. Pure function;
// never mutates the gallery.
func Match(observed []float32, g *gallery.Gallery, tolerance float64) Result {
	bestKey, bestName := "", ""
	bestDist := math.Inf(1)

	for _, id := range g.Identities() {
		for _, ref := range id.Embeddings {
			if d := EuclideanDistance(observed, ref); d < bestDist {
				bestDist = d
				bestKey = id.Key
				bestName = id.Name
			}
		}
	}

	if math.IsInf(bestDist, 1) || bestDist > tolerance {
		return Result{Distance: bestDist}
	}
	return Result{Key: bestKey, Name: bestName, Distance: bestDist, Matched: true}
}
