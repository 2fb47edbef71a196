// Package domain contains the core business entities for prior authorization
// (PA) gap analysis: patient records, payer criteria, extracted evidence and
// submission artifacts.
package domain

import (
	"fmt"
	"time"
)

// CriterionKind identifies the atomic criterion categories a payer rule may
// require. The order of the constants is the fixed evaluation order:
// diagnosis, then lab, then failed therapy.
type CriterionKind string

const (
	CriterionDiagnosis     CriterionKind = "DIAGNOSIS"
	CriterionLab           CriterionKind = "LAB"
	CriterionFailedTherapy CriterionKind = "FAILED_THERAPY"
)

// EvaluationOrder is the fixed order criteria are extracted and reported in,
// regardless of how the rule document declares them.
var EvaluationOrder = []CriterionKind{
	CriterionDiagnosis,
	CriterionLab,
	CriterionFailedTherapy,
}

// IsValid validates the criterion kind.
func (k CriterionKind) IsValid() bool {
	switch k {
	case CriterionDiagnosis, CriterionLab, CriterionFailedTherapy:
		return true
	default:
		return false
	}
}

// SubmissionMethod is the payer's preferred submission channel.
type SubmissionMethod string

const (
	MethodAPI    SubmissionMethod = "API"
	MethodPortal SubmissionMethod = "PORTAL"
	MethodEFax   SubmissionMethod = "EFAX"
)

// IsValid validates the submission method.
func (m SubmissionMethod) IsValid() bool {
	switch m {
	case MethodAPI, MethodPortal, MethodEFax:
		return true
	default:
		return false
	}
}

// SubmissionStatus is the terminal disposition of a submitted PA request.
// Pending is never surfaced to callers; trackers resolve to a terminal state.
type SubmissionStatus string

const (
	StatusApproved SubmissionStatus = "Approved"
	StatusDenied   SubmissionStatus = "Denied"
)

// IsTerminal reports whether the status ends the tracking loop.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// LabResult is a single lab observation on a patient record. The same test
// name may appear more than once; recorded order is significant.
type LabResult struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PatientRecord is the immutable per-evaluation input extracted from the EHR.
type PatientRecord struct {
	PatientID string      `json:"patient_id"`
	Name      string      `json:"name"`
	Payer     string      `json:"payer"`
	Diagnoses []string    `json:"diagnoses"`
	Labs      []LabResult `json:"labs"`
	Notes     string      `json:"notes"`
}

// Validate ensures the record carries the identifiers the pipeline needs.
func (p *PatientRecord) Validate() error {
	if p.PatientID == "" {
		return fmt.Errorf("patient record validation: patient ID is required")
	}
	if p.Payer == "" {
		return fmt.Errorf("patient record validation: payer is required")
	}
	return nil
}

// SubmissionProfile describes how a payer accepts PA submissions.
type SubmissionProfile struct {
	Payer   string           `json:"payer"`
	Method  SubmissionMethod `json:"method"`
	Address string           `json:"address"`
}

// ClinicalJustification is the clinical attachment of a submission form.
type ClinicalJustification struct {
	Diagnoses []string    `json:"diagnoses"`
	Labs      []LabResult `json:"labs"`
	Notes     string      `json:"notes"`
}

// SubmissionForm is the payload handed to the submission transport.
type SubmissionForm struct {
	PatientID              string                `json:"patient_id"`
	DrugName               string                `json:"drug_name"`
	PayerID                string                `json:"payer_id"`
	ClinicalJustification  ClinicalJustification `json:"clinical_justification"`
	StatementOfNecessity   string                `json:"statement_of_medical_necessity"`
}

// SubmissionResult is the transport's response to a dispatch attempt.
type SubmissionResult struct {
	Success    bool   `json:"success"`
	TrackingID string `json:"tracking_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SubmissionRecord is the persisted trace of a dispatched submission.
type SubmissionRecord struct {
	ID         string           `json:"id"`
	TrackingID string           `json:"tracking_id"`
	PatientID  string           `json:"patient_id"`
	DrugName   string           `json:"drug_name"`
	PayerID    string           `json:"payer_id"`
	Method     SubmissionMethod `json:"method"`
	Statement  string           `json:"statement_of_medical_necessity"`
	Status     SubmissionStatus `json:"status,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
