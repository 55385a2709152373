// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultEuclideanTolerance is the conventional maximum euclidean distance for
	// two face encodings to be considered the same person
	DefaultEuclideanTolerance = 0.6

	// LooseEuclideanTolerance is the recall-biased euclidean tolerance used when scanning albums
	LooseEuclideanTolerance = 0.75

	// DefaultCosineTolerance is the default maximum cosine distance for face matching
	// Lower values = stricter matching
	DefaultCosineTolerance = 0.5

	// LooseCosineTolerance is the recall-biased cosine tolerance used when scanning albums
	LooseCosineTolerance = 0.6

	// MinFaceDetectionScore ignores detector hits below this score
	MinFaceDetectionScore = 0.5
)

// Distance metric names
const (
	DistanceEuclidean = "euclidean"
	DistanceCosine    = "cosine"
)

// Text recognition constants
const (
	// MinTextConfidence drops detected text below this confidence before caching
	MinTextConfidence = 0.3

	// MaxImageSize is the maximum dimension (width or height) sent to vision models
	MaxImageSize = 1600
)

// Status view constants
const (
	// StatusMatchWindow is the number of most recent matches returned by a status read
	StatusMatchWindow = 50

	// StatusErrorWindow is the number of most recent errors returned by a status read
	StatusErrorWindow = 20
)

// Source listing constants
const (
	// DefaultPageSize is the default number of items to fetch per API page
	DefaultPageSize = 1000

	// MaxPhotosPerFetch caps the number of images listed from one source
	MaxPhotosPerFetch = 10000
)
