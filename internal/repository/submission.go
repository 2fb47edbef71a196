// Package repository provides PostgreSQL persistence for dispatched
// submissions.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/domain"
)

// SubmissionRepository handles submission record persistence. It implements
// domain.SubmissionStore.
type SubmissionRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *pgxpool.Pool, logger *logrus.Logger) *SubmissionRepository {
	return &SubmissionRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts a dispatched submission record
func (r *SubmissionRepository) Save(ctx context.Context, record *domain.SubmissionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	query := `
		INSERT INTO submissions (
			id, tracking_id, patient_id, drug_name, payer_id,
			method, statement_of_medical_necessity, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.TrackingID,
		record.PatientID,
		record.DrugName,
		record.PayerID,
		string(record.Method),
		record.Statement,
		string(record.Status),
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"tracking_id": record.TrackingID,
			"patient_id":  record.PatientID,
			"error":       err,
		}).Error("Failed to save submission")
		return fmt.Errorf("saving submission: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"tracking_id": record.TrackingID,
		"patient_id":  record.PatientID,
		"payer_id":    record.PayerID,
	}).Info("Submission saved successfully")

	return nil
}

// GetByTrackingID retrieves a submission record by its tracking ID
func (r *SubmissionRepository) GetByTrackingID(ctx context.Context, trackingID string) (*domain.SubmissionRecord, error) {
	query := `
		SELECT id, tracking_id, patient_id, drug_name, payer_id,
			   method, statement_of_medical_necessity, status, created_at, updated_at
		FROM submissions
		WHERE tracking_id = $1`

	var record domain.SubmissionRecord
	var method, status string

	err := r.db.QueryRow(ctx, query, trackingID).Scan(
		&record.ID,
		&record.TrackingID,
		&record.PatientID,
		&record.DrugName,
		&record.PayerID,
		&method,
		&record.Statement,
		&status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("submission %s: %w", trackingID, domain.ErrRecordNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"tracking_id": trackingID,
			"error":       err,
		}).Error("Failed to get submission by tracking ID")
		return nil, fmt.Errorf("getting submission by tracking ID: %w", err)
	}

	record.Method = domain.SubmissionMethod(method)
	record.Status = domain.SubmissionStatus(status)
	return &record, nil
}

// UpdateStatus records the terminal status reported by the payer
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, trackingID string, status domain.SubmissionStatus) error {
	query := `
		UPDATE submissions
		SET status = $1, updated_at = $2
		WHERE tracking_id = $3`

	tag, err := r.db.Exec(ctx, query, string(status), time.Now(), trackingID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"tracking_id": trackingID,
			"status":      status,
			"error":       err,
		}).Error("Failed to update submission status")
		return fmt.Errorf("updating submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %s: %w", trackingID, domain.ErrRecordNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"tracking_id": trackingID,
		"status":      status,
	}).Info("Submission status updated")

	return nil
}

// ListByPatient returns a patient's submissions, newest first
func (r *SubmissionRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*domain.SubmissionRecord, error) {
	query := `
		SELECT id, tracking_id, patient_id, drug_name, payer_id,
			   method, statement_of_medical_necessity, status, created_at, updated_at
		FROM submissions
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing submissions: %w", err)
	}
	defer rows.Close()

	var result []*domain.SubmissionRecord
	for rows.Next() {
		var record domain.SubmissionRecord
		var method, status string

		err := rows.Scan(
			&record.ID,
			&record.TrackingID,
			&record.PatientID,
			&record.DrugName,
			&record.PayerID,
			&method,
			&record.Statement,
			&status,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning submission row: %w", err)
		}

		record.Method = domain.SubmissionMethod(method)
		record.Status = domain.SubmissionStatus(status)
		result = append(result, &record)
	}

	return result, rows.Err()
}
