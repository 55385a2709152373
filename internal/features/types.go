package features

import (
	"crypto/md5" //nolint:gosec // cache key fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
)

// Kind distinguishes the two independently cached feature records of an image.
type Kind string

const (
	KindFaces Kind = "faces"
	KindText  Kind = "text"
)

// FaceFeatures holds the face embeddings found in one image.
// A non-nil empty Embeddings slice means the image was examined and has no faces.
type FaceFeatures struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model,omitempty"`
}

// DetectedText is one recognized text fragment and the recognizer's confidence in [0,1].
type DetectedText struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TextFeatures holds the text fragments recognized in one image.
type TextFeatures struct {
	Detections []DetectedText `json:"detections"`
}

// Texts returns the detected strings in recognition order.
func (t TextFeatures) Texts() []string {
	out := make([]string, len(t.Detections))
	for i, d := range t.Detections {
		out[i] = d.Text
	}
	return out
}

// Fingerprint derives the cache key for an image identifier.
// The same identifier always yields the same key.
func Fingerprint(imageID string) string {
	sum := md5.Sum([]byte(imageID)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Stage names where an extraction failed.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
)

// ExtractionError reports a failed feature extraction for one image.
// Extraction errors are never cached.
type ExtractionError struct {
	ImageID string
	Kind    Kind
	Stage   string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s %s failed for %s: %v", e.Kind, e.Stage, e.ImageID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
