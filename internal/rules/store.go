// Package rules holds the static payer rule table and submission profiles.
// Rules are loaded once at process start from a YAML document and are
// immutable afterwards, so lookups are safe for concurrent use.
package rules

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/prior-auth-engine/internal/domain"
)

// ruleKey identifies a requirement descriptor by payer and drug.
type ruleKey struct {
	payer string
	drug  string
}

// Store is the read-only lookup of payer rules and submission profiles.
type Store struct {
	rules    map[ruleKey]domain.RequirementDescriptor
	profiles map[string]domain.SubmissionProfile
}

// NewStore builds a store from descriptors and profiles, validating every
// entry. Malformed criteria are configuration errors and fail the load.
func NewStore(descriptors []domain.RequirementDescriptor, profiles []domain.SubmissionProfile) (*Store, error) {
	s := &Store{
		rules:    make(map[ruleKey]domain.RequirementDescriptor, len(descriptors)),
		profiles: make(map[string]domain.SubmissionProfile, len(profiles)),
	}

	for i := range descriptors {
		desc := descriptors[i]
		if err := desc.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s/%s: %w", desc.Payer, desc.Drug, err)
		}
		key := ruleKey{payer: desc.Payer, drug: desc.Drug}
		if _, exists := s.rules[key]; exists {
			return nil, domain.NewConfigurationError("rules",
				fmt.Sprintf("duplicate rule for payer %q drug %q", desc.Payer, desc.Drug))
		}
		s.rules[key] = desc
	}

	for _, p := range profiles {
		if p.Payer == "" {
			return nil, domain.NewConfigurationError("profiles", "profile payer is required")
		}
		if !p.Method.IsValid() {
			return nil, domain.NewConfigurationError("profiles",
				fmt.Sprintf("unknown submission method %q for payer %q", p.Method, p.Payer))
		}
		if p.Address == "" {
			return nil, domain.NewConfigurationError("profiles",
				fmt.Sprintf("profile address is required for payer %q", p.Payer))
		}
		if _, exists := s.profiles[p.Payer]; exists {
			return nil, domain.NewConfigurationError("profiles",
				fmt.Sprintf("duplicate profile for payer %q", p.Payer))
		}
		s.profiles[p.Payer] = p
	}

	return s, nil
}

// Lookup returns the requirement descriptor for a (payer, drug) pair.
// The lookup is total: unknown pairs resolve to a descriptor with
// authorization not required.
func (s *Store) Lookup(payer, drug string) domain.RequirementDescriptor {
	if desc, ok := s.rules[ruleKey{payer: payer, drug: drug}]; ok {
		return desc
	}
	return domain.NotRequired(payer, drug)
}

// Profile returns the submission profile for a payer, if one exists.
func (s *Store) Profile(payer string) (*domain.SubmissionProfile, bool) {
	p, ok := s.profiles[payer]
	if !ok {
		return nil, false
	}
	return &p, true
}

// RuleCount returns the number of loaded rules.
func (s *Store) RuleCount() int {
	return len(s.rules)
}

// document is the on-disk YAML shape of the rule table.
type document struct {
	Rules []struct {
		Payer                 string `yaml:"payer"`
		Drug                  string `yaml:"drug"`
		RequiresAuthorization bool   `yaml:"requires_authorization"`
		Criteria              *struct {
			Diagnosis string `yaml:"diagnosis"`
			Lab       *struct {
				Name string   `yaml:"name"`
				Min  *float64 `yaml:"min"`
				Max  *float64 `yaml:"max"`
			} `yaml:"lab"`
			FailedTherapy     string `yaml:"failed_therapy"`
			RequiresStatement bool   `yaml:"requires_statement"`
		} `yaml:"criteria"`
	} `yaml:"rules"`
	Profiles []struct {
		Payer   string `yaml:"payer"`
		Method  string `yaml:"method"`
		Address string `yaml:"address"`
	} `yaml:"profiles"`
}

// Load parses a YAML rule document and builds a validated store.
func Load(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule document: %w", err)
	}

	descriptors := make([]domain.RequirementDescriptor, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		desc := domain.RequirementDescriptor{
			Payer:                 r.Payer,
			Drug:                  r.Drug,
			RequiresAuthorization: r.RequiresAuthorization,
		}
		if r.Criteria != nil {
			criteria := &domain.CriteriaSet{
				RequiresStatement: r.Criteria.RequiresStatement,
			}
			if r.Criteria.Diagnosis != "" {
				criteria.Diagnosis = &domain.DiagnosisCriterion{Code: r.Criteria.Diagnosis}
			}
			if r.Criteria.Lab != nil {
				criteria.Lab = &domain.LabCriterion{
					Name: r.Criteria.Lab.Name,
					Min:  r.Criteria.Lab.Min,
					Max:  r.Criteria.Lab.Max,
				}
			}
			if r.Criteria.FailedTherapy != "" {
				criteria.FailedTherapy = &domain.FailedTherapyCriterion{Drug: r.Criteria.FailedTherapy}
			}
			desc.Criteria = criteria
		}
		descriptors = append(descriptors, desc)
	}

	profiles := make([]domain.SubmissionProfile, 0, len(doc.Profiles))
	for _, p := range doc.Profiles {
		profiles = append(profiles, domain.SubmissionProfile{
			Payer:   p.Payer,
			Method:  domain.SubmissionMethod(p.Method),
			Address: p.Address,
		})
	}

	return NewStore(descriptors, profiles)
}

// LoadFile reads and parses the rule document at path.
func LoadFile(path string, logger *logrus.Logger) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule document %s: %w", path, err)
	}

	store, err := Load(data)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":     path,
		"rules":    store.RuleCount(),
		"profiles": len(store.profiles),
	}).Info("Payer rule document loaded")

	return store, nil
}
