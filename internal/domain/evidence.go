package domain

import "strconv"

// Evidence is the sparse record of which criteria the patient record was
// determined to satisfy. Absence means "not determined satisfied", never
// "determined false": extraction only asserts positive evidence.
type Evidence map[CriterionKind]bool

// MarkSatisfied records positive evidence for a criterion kind.
func (e Evidence) MarkSatisfied(kind CriterionKind) {
	e[kind] = true
}

// Satisfied reports whether positive evidence exists for the kind.
func (e Evidence) Satisfied(kind CriterionKind) bool {
	return e[kind]
}

// CriterionFinding is the structured outcome for a single criterion. Message
// text is rendered from it at the boundary so the evaluation decision stays
// separate from presentation.
type CriterionFinding struct {
	Kind     CriterionKind `json:"kind"`
	Met      bool          `json:"met"`
	Code     string        `json:"code,omitempty"`
	LabName  string        `json:"lab_name,omitempty"`
	Observed *float64      `json:"observed,omitempty"`
	Bound    string        `json:"bound,omitempty"`
	Drug     string        `json:"drug,omitempty"`
}

// GapAnalysisResult partitions the required criteria into met and missing,
// each as rendered explanation strings in the fixed evaluation order.
type GapAnalysisResult struct {
	GapsFound bool               `json:"gaps_found"`
	Missing   []string           `json:"missing"`
	Met       []string           `json:"met"`
	Findings  []CriterionFinding `json:"findings,omitempty"`
	Evidence  Evidence           `json:"evidence,omitempty"`
}

// StatementRequest is the structured input to the external text generator
// when a statement of medical necessity is required and no gaps were found.
type StatementRequest struct {
	PatientName string   `json:"patient_name"`
	DrugName    string   `json:"drug_name"`
	MetCriteria []string `json:"met_criteria"`
}

// FormatLabValue renders a lab value or bound with at least one fractional
// digit, so 8 prints as "8.0" and 7.25 as "7.25". Gap messages depend on
// this for stable, unambiguous threshold reporting.
func FormatLabValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for _, r := range s {
		if r == '.' {
			return s
		}
	}
	return s + ".0"
}
