package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth-engine/internal/domain"
)

func TestAnalyze_LabMet_CitesValueAndBound(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{PatientID: "PID-005", Payer: "Payer_A", Labs: []domain.LabResult{{Name: "HbA1c", Value: 8.0}}}
	criteria := &domain.CriteriaSet{Lab: &domain.LabCriterion{Name: "HbA1c", Min: fptr(7.5)}}
	evidence := domain.Evidence{domain.CriterionLab: true}

	result := analyzer.Analyze(patient, criteria, evidence)

	assert.False(t, result.GapsFound)
	require.Len(t, result.Met, 1)
	assert.Contains(t, result.Met[0], "8.0")
	assert.Contains(t, result.Met[0], ">= 7.5")
	assert.Empty(t, result.Missing)
}

func TestAnalyze_LabMissed_CitesObservedValue(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{PatientID: "PID-005", Payer: "Payer_A", Labs: []domain.LabResult{{Name: "HbA1c", Value: 7.0}}}
	criteria := &domain.CriteriaSet{Lab: &domain.LabCriterion{Name: "HbA1c", Min: fptr(7.5)}}

	result := analyzer.Analyze(patient, criteria, domain.Evidence{})

	assert.True(t, result.GapsFound)
	require.Len(t, result.Missing, 1)
	assert.Contains(t, result.Missing[0], "7.0")
	assert.Contains(t, result.Missing[0], ">= 7.5")
	assert.Empty(t, result.Met)
}

func TestAnalyze_RangeCriterion_CitesBothBounds(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	criteria := &domain.CriteriaSet{Lab: &domain.LabCriterion{Name: "Creatinine", Min: fptr(0.6), Max: fptr(1.2)}}

	patient := &domain.PatientRecord{PatientID: "PID-010", Payer: "Payer_A", Labs: []domain.LabResult{{Name: "Creatinine", Value: 1.0}}}
	result := analyzer.Analyze(patient, criteria, domain.Evidence{domain.CriterionLab: true})
	require.Len(t, result.Met, 1)
	assert.Contains(t, result.Met[0], ">= 0.6 and <= 1.2")

	patient = &domain.PatientRecord{PatientID: "PID-011", Payer: "Payer_A", Labs: []domain.LabResult{{Name: "Creatinine", Value: 1.5}}}
	result = analyzer.Analyze(patient, criteria, domain.Evidence{})
	require.Len(t, result.Missing, 1)
	assert.Contains(t, result.Missing[0], "1.5")
	assert.Contains(t, result.Missing[0], ">= 0.6 and <= 1.2")
}

func TestAnalyze_LabMissing_NoMatchingEntry_OmitsValue(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{PatientID: "PID-007", Payer: "Payer_A"}
	criteria := &domain.CriteriaSet{Lab: &domain.LabCriterion{Name: "HbA1c", Min: fptr(7.5)}}

	result := analyzer.Analyze(patient, criteria, domain.Evidence{})

	assert.True(t, result.GapsFound)
	require.Len(t, result.Missing, 1)
	assert.Equal(t, "Missing required lab result for HbA1c (>= 7.5).", result.Missing[0])
}

func TestAnalyze_ReportsFixedOrder(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{PatientID: "PID-006", Payer: "Payer_B"}
	criteria := &domain.CriteriaSet{
		FailedTherapy: &domain.FailedTherapyCriterion{Drug: "Jardiance"},
		Diagnosis:     &domain.DiagnosisCriterion{Code: "E11.9"},
		Lab:           &domain.LabCriterion{Name: "HbA1c", Min: fptr(7.5)},
	}

	result := analyzer.Analyze(patient, criteria, domain.Evidence{})

	require.Len(t, result.Missing, 3)
	assert.Equal(t, "Missing required diagnosis: E11.9", result.Missing[0])
	assert.Equal(t, "Missing required lab result for HbA1c (>= 7.5).", result.Missing[1])
	assert.Equal(t, "Missing evidence of failed therapy on Jardiance", result.Missing[2])
}

func TestAnalyze_MixedMetAndMissing(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{
		PatientID: "PID-006",
		Payer:     "Payer_B",
		Diagnoses: []string{"E11.9"},
		Labs:      []domain.LabResult{{Name: "HbA1c", Value: 7.6}},
	}
	criteria := &domain.CriteriaSet{
		Diagnosis:     &domain.DiagnosisCriterion{Code: "E11.9"},
		FailedTherapy: &domain.FailedTherapyCriterion{Drug: "Jardiance"},
	}
	evidence := domain.Evidence{domain.CriterionDiagnosis: true}

	result := analyzer.Analyze(patient, criteria, evidence)

	assert.True(t, result.GapsFound)
	assert.Equal(t, []string{"Diagnosis criteria met: E11.9"}, result.Met)
	assert.Equal(t, []string{"Missing evidence of failed therapy on Jardiance"}, result.Missing)
}

func TestAnalyze_EmptyCriteriaSet(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	patient := &domain.PatientRecord{PatientID: "PID-008", Payer: "Payer_A"}

	// Authorization required but no structured criteria defined.
	result := analyzer.Analyze(patient, &domain.CriteriaSet{RequiresStatement: true}, domain.Evidence{})

	assert.False(t, result.GapsFound)
	assert.Empty(t, result.Met)
	assert.Empty(t, result.Missing)
}

func TestAnalyze_Idempotent(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())

	patient := &domain.PatientRecord{
		PatientID: "PID-005",
		Payer:     "Payer_A",
		Diagnoses: []string{"E11.9"},
		Labs:      []domain.LabResult{{Name: "HbA1c", Value: 8.0}},
	}
	criteria := &domain.CriteriaSet{
		Diagnosis: &domain.DiagnosisCriterion{Code: "E11.9"},
		Lab:       &domain.LabCriterion{Name: "HbA1c", Min: fptr(7.5)},
	}
	evidence := domain.Evidence{domain.CriterionDiagnosis: true, domain.CriterionLab: true}

	first := analyzer.Analyze(patient, criteria, evidence)
	second := analyzer.Analyze(patient, criteria, evidence)

	assert.Equal(t, first, second)
}
