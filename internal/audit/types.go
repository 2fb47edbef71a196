// Package audit provides an evaluation audit log for prior authorization
// gap analyses. Every evaluated (patient, drug) pair is recorded with its
// outcome so reviewers can trace why a submission was or was not attempted.
package audit

import (
	"context"
	"time"
)

// Entry represents one recorded evaluation outcome.
type Entry struct {
	ID                    int64     `json:"id,omitempty"`
	PatientID             string    `json:"patient_id"`
	DrugName              string    `json:"drug_name"`
	PayerID               string    `json:"payer_id"`
	AuthorizationRequired bool      `json:"authorization_required"`
	GapsFound             bool      `json:"gaps_found"`
	MetCriteria           []string  `json:"met_criteria,omitempty"`
	MissingCriteria       []string  `json:"missing_criteria,omitempty"`
	TrackingID            string    `json:"tracking_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// Store defines the interface for audit log storage.
type Store interface {
	// Save appends an evaluation entry to the log.
	Save(ctx context.Context, entry *Entry) error

	// List returns entries ordered newest first, with pagination.
	List(ctx context.Context, limit, offset int) ([]*Entry, error)

	// ListByPatient returns entries for one patient, newest first.
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Entry, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)

	// Close closes the store and releases resources.
	Close() error
}
