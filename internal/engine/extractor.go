// Package engine implements the prior authorization criteria evaluation:
// evidence extraction from patient records, gap analysis against payer
// criteria and the end-to-end submission pipeline.
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/domain"
)

// FailedTherapyConfidenceThreshold is the fixed policy constant for the one
// probabilistic decision point in the system: the classifier's top label only
// counts as evidence when its confidence strictly exceeds this value.
const FailedTherapyConfidenceThreshold = 0.80

// hypothesisTemplate frames the candidate labels for the zero-shot classifier.
const hypothesisTemplate = "The clinical note says that {}."

// failureHypothesis and toleranceHypothesis are the two candidate labels
// tested against the clinical notes for a failed-therapy criterion.
func failureHypothesis(drug string) string {
	return fmt.Sprintf("This patient has experienced treatment failure or adverse effects from %s.", drug)
}

func toleranceHypothesis(drug string) string {
	return fmt.Sprintf("This patient is tolerating or responding well to %s.", drug)
}

// Extractor maps a patient record against a criteria set and produces
// positive evidence. It never asserts negative evidence: a criterion absent
// from the returned Evidence is "not determined satisfied".
type Extractor struct {
	logger     *logrus.Logger
	classifier domain.TextClassifier
}

// NewExtractor creates an evidence extractor.
func NewExtractor(logger *logrus.Logger, classifier domain.TextClassifier) *Extractor {
	return &Extractor{
		logger:     logger,
		classifier: classifier,
	}
}

// Extract evaluates the criteria against the patient record in the fixed
// order diagnosis, lab, failed therapy. A classifier failure propagates as a
// CollaboratorError: an inability to classify is an unknown, not evidence
// that the therapy did not fail.
func (e *Extractor) Extract(ctx context.Context, patient *domain.PatientRecord, criteria *domain.CriteriaSet) (domain.Evidence, error) {
	evidence := domain.Evidence{}
	if criteria.IsEmpty() {
		return evidence, nil
	}

	if criteria.Diagnosis != nil {
		for _, code := range patient.Diagnoses {
			if code == criteria.Diagnosis.Code {
				evidence.MarkSatisfied(domain.CriterionDiagnosis)
				break
			}
		}
	}

	if criteria.Lab != nil {
		if lab := FirstNamedLab(patient, criteria.Lab.Name); lab != nil && criteria.Lab.Satisfies(lab.Value) {
			evidence.MarkSatisfied(domain.CriterionLab)
		}
	}

	if criteria.FailedTherapy != nil {
		failed, err := e.classifyFailedTherapy(ctx, patient, criteria.FailedTherapy.Drug)
		if err != nil {
			return nil, err
		}
		if failed {
			evidence.MarkSatisfied(domain.CriterionFailedTherapy)
		}
	}

	return evidence, nil
}

// classifyFailedTherapy asks the external classifier whether the clinical
// notes indicate treatment failure or adverse effects on the drug.
func (e *Extractor) classifyFailedTherapy(ctx context.Context, patient *domain.PatientRecord, drug string) (bool, error) {
	failure := failureHypothesis(drug)
	labels := []string{failure, toleranceHypothesis(drug)}

	result, err := e.classifier.Classify(ctx, patient.Notes, labels, hypothesisTemplate)
	if err != nil {
		return false, domain.NewCollaboratorError("text classifier", err)
	}
	if len(result.Labels) == 0 || len(result.Scores) != len(result.Labels) {
		return false, domain.NewCollaboratorError("text classifier",
			fmt.Errorf("malformed classification result: %d labels, %d scores", len(result.Labels), len(result.Scores)))
	}

	topLabel, topScore := result.Labels[0], result.Scores[0]
	e.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"drug":       drug,
		"top_label":  topLabel,
		"top_score":  topScore,
	}).Debug("Failed therapy hypothesis tested")

	return topLabel == failure && topScore > FailedTherapyConfidenceThreshold, nil
}

// FirstNamedLab returns the first lab observation with the given name, in
// recorded order. The first matching-named entry decides a lab criterion:
// the scan stops there even if a later entry with the same name would
// qualify.
func FirstNamedLab(patient *domain.PatientRecord, name string) *domain.LabResult {
	for i := range patient.Labs {
		if patient.Labs[i].Name == name {
			return &patient.Labs[i]
		}
	}
	return nil
}
