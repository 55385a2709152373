// Package matching decides whether an image's cached features satisfy a search
// criterion. Evaluation is pure: the same inputs always give the same outcome.
package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/photolink/internal/features"
)

// Reason explains why an image matched.
type Reason string

const (
	ReasonNone Reason = ""
	ReasonFace Reason = "face"
	ReasonText Reason = "text"
)

var (
	// ErrEmptyCriterion is returned when neither faces nor search text were given.
	ErrEmptyCriterion = errors.New("at least one of a reference face or search text is required")
	// ErrBlankSearchText is returned for search text with nothing left to match after normalization.
	ErrBlankSearchText = errors.New("search text contains no searchable characters")
)

// Criterion is what a scan looks for. At least one part must be present.
type Criterion struct {
	TargetFaces [][]float32
	SearchText  string
}

// HasFaces reports whether the criterion includes reference face embeddings.
func (c Criterion) HasFaces() bool {
	return len(c.TargetFaces) > 0
}

// HasText reports whether the criterion includes a search string.
func (c Criterion) HasText() bool {
	return strings.TrimSpace(c.SearchText) != ""
}

// Validate checks the criterion before any job exists.
func (c Criterion) Validate() error {
	if !c.HasFaces() && !c.HasText() {
		return ErrEmptyCriterion
	}
	if c.HasText() && strings.TrimSpace(StripPunctuation(NormalizeText(c.SearchText))) == "" {
		return ErrBlankSearchText
	}
	return nil
}

// Outcome is the result of evaluating one image.
type Outcome struct {
	Matched bool
	Reason  Reason
}

// Policy holds the face comparison settings.
type Policy struct {
	Tolerance float64
	Distance  DistanceFunc
}

// NewPolicy builds a policy for the named distance metric.
func NewPolicy(distance string, tolerance float64) (*Policy, error) {
	fn, err := DistanceByName(distance)
	if err != nil {
		return nil, err
	}
	if tolerance <= 0 {
		return nil, fmt.Errorf("face tolerance must be positive, got %v", tolerance)
	}
	return &Policy{Tolerance: tolerance, Distance: fn}, nil
}

// MatchFaces reports whether any candidate is within tolerance of any target.
func (p *Policy) MatchFaces(targets, candidates [][]float32) bool {
	for _, target := range targets {
		for _, candidate := range candidates {
			if p.Distance(target, candidate) <= p.Tolerance {
				return true
			}
		}
	}
	return false
}

// Evaluate applies the face check, then the text check, and stops at the first hit.
// A nil feature record means it was not computed and its check is skipped.
func (p *Policy) Evaluate(c Criterion, faces *features.FaceFeatures, text *features.TextFeatures) Outcome {
	if c.HasFaces() && faces != nil && len(faces.Embeddings) > 0 {
		if p.MatchFaces(c.TargetFaces, faces.Embeddings) {
			return Outcome{Matched: true, Reason: ReasonFace}
		}
	}
	if c.HasText() && text != nil {
		if MatchText(c.SearchText, text.Texts()) {
			return Outcome{Matched: true, Reason: ReasonText}
		}
	}
	return Outcome{}
}
