package domain

import (
	"fmt"
	"strings"
)

// DiagnosisCriterion requires a diagnosis code to appear on the patient's
// diagnosis list (exact string match).
type DiagnosisCriterion struct {
	Code string `json:"code"`
}

// LabCriterion requires a named lab observation inside the inclusive bounds.
// At least one bound must be present; a boundless lab criterion is a
// configuration error caught at rule-load time.
type LabCriterion struct {
	Name string   `json:"name"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// Condition renders the bound expression, e.g. ">= 7.5 and <= 10.0".
func (l *LabCriterion) Condition() string {
	parts := make([]string, 0, 2)
	if l.Min != nil {
		parts = append(parts, ">= "+FormatLabValue(*l.Min))
	}
	if l.Max != nil {
		parts = append(parts, "<= "+FormatLabValue(*l.Max))
	}
	return strings.Join(parts, " and ")
}

// Satisfies reports whether a value meets every bound present on the
// criterion. Bounds are inclusive.
func (l *LabCriterion) Satisfies(value float64) bool {
	if l.Min != nil && value < *l.Min {
		return false
	}
	if l.Max != nil && value > *l.Max {
		return false
	}
	return true
}

// FailedTherapyCriterion requires clinical notes to indicate treatment
// failure or adverse effects on the named drug, determined by the external
// text classifier.
type FailedTherapyCriterion struct {
	Drug string `json:"drug"`
}

// CriteriaSet is the structured criteria attached to a payer rule. Each
// criterion kind appears at most once; a nil pointer means the kind is not
// required. RequiresStatement is orthogonal to the criteria: it flags that a
// statement of medical necessity must be generated before submission.
type CriteriaSet struct {
	Diagnosis         *DiagnosisCriterion     `json:"diagnosis,omitempty"`
	Lab               *LabCriterion           `json:"lab,omitempty"`
	FailedTherapy     *FailedTherapyCriterion `json:"failed_therapy,omitempty"`
	RequiresStatement bool                    `json:"requires_statement,omitempty"`
}

// IsEmpty reports whether the set contains no structured criteria.
func (c *CriteriaSet) IsEmpty() bool {
	return c == nil || (c.Diagnosis == nil && c.Lab == nil && c.FailedTherapy == nil)
}

// Kinds returns the criterion kinds present in the set, in the fixed
// evaluation order.
func (c *CriteriaSet) Kinds() []CriterionKind {
	if c == nil {
		return nil
	}
	kinds := make([]CriterionKind, 0, 3)
	if c.Diagnosis != nil {
		kinds = append(kinds, CriterionDiagnosis)
	}
	if c.Lab != nil {
		kinds = append(kinds, CriterionLab)
	}
	if c.FailedTherapy != nil {
		kinds = append(kinds, CriterionFailedTherapy)
	}
	return kinds
}

// Validate checks structural validity of the criteria. Violations are
// configuration errors and must be fatal when the rule document loads,
// never at evaluation time.
func (c *CriteriaSet) Validate() error {
	if c == nil {
		return nil
	}
	if c.Diagnosis != nil && c.Diagnosis.Code == "" {
		return NewConfigurationError("criteria.diagnosis", "diagnosis code is required")
	}
	if c.Lab != nil {
		if c.Lab.Name == "" {
			return NewConfigurationError("criteria.lab", "lab name is required")
		}
		if c.Lab.Min == nil && c.Lab.Max == nil {
			return NewConfigurationError("criteria.lab",
				fmt.Sprintf("lab criterion %q must define at least one of min or max", c.Lab.Name))
		}
		if c.Lab.Min != nil && c.Lab.Max != nil && *c.Lab.Min > *c.Lab.Max {
			return NewConfigurationError("criteria.lab",
				fmt.Sprintf("lab criterion %q has min %v greater than max %v", c.Lab.Name, *c.Lab.Min, *c.Lab.Max))
		}
	}
	if c.FailedTherapy != nil && c.FailedTherapy.Drug == "" {
		return NewConfigurationError("criteria.failed_therapy", "drug name is required")
	}
	return nil
}

// RequirementDescriptor is a Rule Store entry keyed by (payer, drug).
type RequirementDescriptor struct {
	Payer                 string       `json:"payer"`
	Drug                  string       `json:"drug"`
	RequiresAuthorization bool         `json:"requires_authorization"`
	Criteria              *CriteriaSet `json:"criteria,omitempty"`
}

// NotRequired is the default descriptor returned for unknown (payer, drug)
// pairs: authorization is not required and no criteria apply.
func NotRequired(payer, drug string) RequirementDescriptor {
	return RequirementDescriptor{Payer: payer, Drug: drug, RequiresAuthorization: false}
}

// Validate checks the descriptor and its criteria.
func (r *RequirementDescriptor) Validate() error {
	if r.Payer == "" || r.Drug == "" {
		return NewConfigurationError("rule", "payer and drug are required")
	}
	if !r.RequiresAuthorization {
		// Criteria are ignored when authorization is not required.
		return nil
	}
	return r.Criteria.Validate()
}
