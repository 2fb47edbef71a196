package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/domain"
)

// Analyzer partitions a criteria set into met and missing criteria based on
// extracted evidence. The partition decision is computed as structured
// findings; message text is rendered from them at the boundary.
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer creates a gap analyzer.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze produces the gap analysis result for a criteria set and the
// evidence extracted from the patient record. Criteria are reported in the
// fixed evaluation order. An empty criteria set yields no gaps.
func (a *Analyzer) Analyze(patient *domain.PatientRecord, criteria *domain.CriteriaSet, evidence domain.Evidence) *domain.GapAnalysisResult {
	result := &domain.GapAnalysisResult{
		Missing:  []string{},
		Met:      []string{},
		Evidence: evidence,
	}
	if criteria.IsEmpty() {
		return result
	}

	findings := make([]domain.CriterionFinding, 0, 3)

	if criteria.Diagnosis != nil {
		findings = append(findings, domain.CriterionFinding{
			Kind: domain.CriterionDiagnosis,
			Met:  evidence.Satisfied(domain.CriterionDiagnosis),
			Code: criteria.Diagnosis.Code,
		})
	}

	if criteria.Lab != nil {
		finding := domain.CriterionFinding{
			Kind:    domain.CriterionLab,
			Met:     evidence.Satisfied(domain.CriterionLab),
			LabName: criteria.Lab.Name,
			Bound:   criteria.Lab.Condition(),
		}
		// Cite the deciding observation when one exists. When no lab with
		// the required name was recorded at all, the observed value stays
		// absent rather than fabricated.
		if lab := FirstNamedLab(patient, criteria.Lab.Name); lab != nil {
			value := lab.Value
			finding.Observed = &value
		}
		findings = append(findings, finding)
	}

	if criteria.FailedTherapy != nil {
		findings = append(findings, domain.CriterionFinding{
			Kind: domain.CriterionFailedTherapy,
			Met:  evidence.Satisfied(domain.CriterionFailedTherapy),
			Drug: criteria.FailedTherapy.Drug,
		})
	}

	for _, f := range findings {
		if f.Met {
			result.Met = append(result.Met, RenderFinding(f))
		} else {
			result.Missing = append(result.Missing, RenderFinding(f))
		}
	}
	result.Findings = findings
	result.GapsFound = len(result.Missing) > 0

	a.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"gaps_found": result.GapsFound,
		"met":        len(result.Met),
		"missing":    len(result.Missing),
	}).Info("Gap analysis completed")

	return result
}

// RenderFinding renders the human-readable explanation for a finding.
func RenderFinding(f domain.CriterionFinding) string {
	switch f.Kind {
	case domain.CriterionDiagnosis:
		if f.Met {
			return fmt.Sprintf("Diagnosis criteria met: %s", f.Code)
		}
		return fmt.Sprintf("Missing required diagnosis: %s", f.Code)
	case domain.CriterionLab:
		if f.Met {
			return fmt.Sprintf("Lab result of %s %s meets criteria (%s).",
				f.LabName, domain.FormatLabValue(*f.Observed), f.Bound)
		}
		if f.Observed != nil {
			return fmt.Sprintf("Lab result of %s %s misses criteria (%s).",
				f.LabName, domain.FormatLabValue(*f.Observed), f.Bound)
		}
		return fmt.Sprintf("Missing required lab result for %s (%s).", f.LabName, f.Bound)
	case domain.CriterionFailedTherapy:
		if f.Met {
			return fmt.Sprintf("Failed therapy criteria met: %s", f.Drug)
		}
		return fmt.Sprintf("Missing evidence of failed therapy on %s", f.Drug)
	default:
		return fmt.Sprintf("Unknown criterion kind: %s", f.Kind)
	}
}
