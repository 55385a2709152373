package matching

import (
	"fmt"
	"math"

	"github.com/kozaktomas/photolink/internal/constants"
)

// DistanceFunc measures how far apart two face embeddings are. Lower is closer.
type DistanceFunc func(a, b []float32) float64

// invalidDistance is returned for mismatched or empty vectors so they never match.
const invalidDistance = math.MaxFloat64

// EuclideanDistance computes the L2 distance between two face encodings.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return invalidDistance
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	similarity = max(-1, min(1, similarity))

	return 1 - similarity
}

// DistanceByName resolves a metric name from configuration.
func DistanceByName(name string) (DistanceFunc, error) {
	switch name {
	case constants.DistanceEuclidean:
		return EuclideanDistance, nil
	case constants.DistanceCosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown face distance %q", name)
	}
}
