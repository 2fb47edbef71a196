package domain

import (
	"context"
)

// ClassificationResult is the ranked output of the external text classifier.
// Labels are ordered by confidence descending; Scores is parallel to Labels.
type ClassificationResult struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// TextClassifier is the external zero-shot classification collaborator.
// The engine uses exactly two candidate labels per call and reads only the
// top-ranked pair.
type TextClassifier interface {
	Classify(ctx context.Context, text string, candidateLabels []string, hypothesisTemplate string) (*ClassificationResult, error)
}

// TextGenerator is the external text generation collaborator. Its output is
// treated as an opaque non-empty paragraph.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxNewTokens int, repetitionPenalty float64) (string, error)
}

// SubmissionTransport dispatches completed submission forms to a payer using
// the payer's submission profile.
type SubmissionTransport interface {
	Submit(ctx context.Context, form *SubmissionForm, profile *SubmissionProfile) (*SubmissionResult, error)
}

// StatusTracker resolves a tracking ID to a terminal submission status.
// Implementations poll or subscribe until the payer reports Approved or
// Denied; an indefinite Pending state is never returned.
type StatusTracker interface {
	Track(ctx context.Context, trackingID string) (SubmissionStatus, error)
}

// SubmissionStore persists dispatched submission records.
type SubmissionStore interface {
	Save(ctx context.Context, record *SubmissionRecord) error
	GetByTrackingID(ctx context.Context, trackingID string) (*SubmissionRecord, error)
	UpdateStatus(ctx context.Context, trackingID string, status SubmissionStatus) error
}
