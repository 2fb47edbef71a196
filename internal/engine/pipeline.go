package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/audit"
	"github.com/prior-auth-engine/internal/domain"
	"github.com/prior-auth-engine/internal/rules"
)

// Generation parameters for the statement of medical necessity, matching the
// generator collaborator's contract.
const (
	statementMaxNewTokens      = 100
	statementRepetitionPenalty = 1.2
)

// StepEvent describes pipeline progress for streaming observers.
type StepEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Pipeline step names reported to observers.
const (
	StepRequirementCheck = "requirement_check"
	StepGapAnalysis      = "gap_analysis"
	StepStatement        = "statement_generation"
	StepSubmission       = "submission"
)

// EvaluationResult is the outcome of one (patient, drug) evaluation.
type EvaluationResult struct {
	PatientID             string                    `json:"patient_id"`
	DrugName              string                    `json:"drug_name"`
	PayerID               string                    `json:"payer_id"`
	AuthorizationRequired bool                      `json:"authorization_required"`
	Analysis              *domain.GapAnalysisResult `json:"analysis,omitempty"`
	Statement             string                    `json:"statement_of_medical_necessity,omitempty"`
	Submission            *domain.SubmissionResult  `json:"submission,omitempty"`
}

// Pipeline runs the full prior authorization flow: requirement check, gap
// analysis, statement generation and submission dispatch. Each evaluation is
// independent and side-effect-free apart from the collaborator calls and the
// persistence of submission and audit records, so evaluations may run
// concurrently.
type Pipeline struct {
	logger    *logrus.Logger
	store     *rules.Store
	extractor *Extractor
	analyzer  *Analyzer
	generator domain.TextGenerator
	transport domain.SubmissionTransport
	records   domain.SubmissionStore // optional
	auditLog  audit.Store            // optional
}

// NewPipeline wires the evaluation pipeline. The submission store and audit
// log may be nil; persistence failures never fail an evaluation.
func NewPipeline(
	logger *logrus.Logger,
	store *rules.Store,
	extractor *Extractor,
	analyzer *Analyzer,
	generator domain.TextGenerator,
	transport domain.SubmissionTransport,
	records domain.SubmissionStore,
	auditLog audit.Store,
) *Pipeline {
	return &Pipeline{
		logger:    logger,
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		generator: generator,
		transport: transport,
		records:   records,
		auditLog:  auditLog,
	}
}

// IsAuthorizationRequired reports whether the payer requires prior
// authorization for the drug. Pure lookup; no side effects.
func (p *Pipeline) IsAuthorizationRequired(patient *domain.PatientRecord, drugName string) bool {
	return p.store.Lookup(patient.Payer, drugName).RequiresAuthorization
}

// Evaluate runs the full pipeline for one (patient, drug) pair.
func (p *Pipeline) Evaluate(ctx context.Context, patient *domain.PatientRecord, drugName string) (*EvaluationResult, error) {
	return p.EvaluateWithObserver(ctx, patient, drugName, nil)
}

// EvaluateWithObserver runs the pipeline and reports step events to observe,
// which may be nil.
func (p *Pipeline) EvaluateWithObserver(ctx context.Context, patient *domain.PatientRecord, drugName string, observe func(StepEvent)) (*EvaluationResult, error) {
	if err := patient.Validate(); err != nil {
		return nil, err
	}

	log := p.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"payer":      patient.Payer,
		"drug":       drugName,
	})

	result := &EvaluationResult{
		PatientID: patient.PatientID,
		DrugName:  drugName,
		PayerID:   patient.Payer,
	}

	descriptor := p.store.Lookup(patient.Payer, drugName)
	result.AuthorizationRequired = descriptor.RequiresAuthorization
	notify(observe, StepRequirementCheck, fmt.Sprintf("prior authorization required: %t", descriptor.RequiresAuthorization))

	if !descriptor.RequiresAuthorization {
		log.Info("Prior authorization not required")
		return result, nil
	}

	evidence, err := p.extractor.Extract(ctx, patient, descriptor.Criteria)
	if err != nil {
		return nil, fmt.Errorf("extracting evidence: %w", err)
	}

	analysis := p.analyzer.Analyze(patient, descriptor.Criteria, evidence)
	result.Analysis = analysis
	notify(observe, StepGapAnalysis, fmt.Sprintf("gaps found: %t (%d met, %d missing)",
		analysis.GapsFound, len(analysis.Met), len(analysis.Missing)))

	if analysis.GapsFound {
		log.WithField("missing", analysis.Missing).Info("Gaps found, submission halted")
		p.recordAudit(ctx, patient, drugName, result)
		return result, nil
	}

	if descriptor.Criteria != nil && descriptor.Criteria.RequiresStatement {
		statement, err := p.generateStatement(ctx, patient, drugName, analysis.Met)
		if err != nil {
			return nil, fmt.Errorf("generating statement of medical necessity: %w", err)
		}
		result.Statement = statement
		notify(observe, StepStatement, "statement of medical necessity generated")
	} else {
		result.Statement = "Not Required"
	}

	submission := p.submit(ctx, patient, drugName, result.Statement)
	result.Submission = submission
	notify(observe, StepSubmission, submissionMessage(submission))

	p.recordAudit(ctx, patient, drugName, result)
	return result, nil
}

// generateStatement builds the structured justification request and calls the
// external text generator. The returned paragraph is treated opaquely.
func (p *Pipeline) generateStatement(ctx context.Context, patient *domain.PatientRecord, drugName string, metCriteria []string) (string, error) {
	req := domain.StatementRequest{
		PatientName: patient.Name,
		DrugName:    drugName,
		MetCriteria: metCriteria,
	}

	prompt := buildStatementPrompt(req)
	statement, err := p.generator.Generate(ctx, prompt, statementMaxNewTokens, statementRepetitionPenalty)
	if err != nil {
		return "", domain.NewCollaboratorError("text generator", err)
	}
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return "", domain.NewCollaboratorError("text generator", fmt.Errorf("empty statement returned"))
	}
	return statement, nil
}

// buildStatementPrompt renders the generator prompt from the structured
// justification request.
func buildStatementPrompt(req domain.StatementRequest) string {
	var b strings.Builder
	b.WriteString("You are a medical administrator writing a Statement of Medical Necessity. ")
	b.WriteString("Your task is to synthesize the provided clinical data into a professional, fluent paragraph justifying the requested medication.\n")
	b.WriteString("VERIFIED CLINICAL POINTS:\n")
	b.WriteString("- Patient Name: " + req.PatientName + "\n")
	b.WriteString("- " + strings.Join(req.MetCriteria, "\n- ") + "\n\n")
	b.WriteString("- Proposed New Medication: " + req.DrugName + "\n\n")
	b.WriteString("INSTRUCTION: Write a professional Statement of Medical Necessity stating all met criteria. ")
	b.WriteString("The statement must be a natural, well-written paragraph.")
	return b.String()
}

// submit builds the submission form, resolves the payer profile and
// dispatches. Failures are structured results, never errors: a missing
// profile or a transport rejection halts the pipeline without throwing.
func (p *Pipeline) submit(ctx context.Context, patient *domain.PatientRecord, drugName, statement string) *domain.SubmissionResult {
	profile, ok := p.store.Profile(patient.Payer)
	if !ok {
		p.logger.WithField("payer", patient.Payer).Warn("No submission profile for payer")
		return &domain.SubmissionResult{
			Success: false,
			Message: fmt.Sprintf("no submission profile for %s", patient.Payer),
		}
	}

	form := &domain.SubmissionForm{
		PatientID: patient.PatientID,
		DrugName:  drugName,
		PayerID:   patient.Payer,
		ClinicalJustification: domain.ClinicalJustification{
			Diagnoses: patient.Diagnoses,
			Labs:      patient.Labs,
			Notes:     patient.Notes,
		},
		StatementOfNecessity: statement,
	}

	submission, err := p.transport.Submit(ctx, form, profile)
	if err != nil {
		p.logger.WithError(err).Warn("Submission dispatch failed")
		return &domain.SubmissionResult{Success: false, Message: err.Error()}
	}

	if submission.Success && p.records != nil {
		record := &domain.SubmissionRecord{
			TrackingID: submission.TrackingID,
			PatientID:  patient.PatientID,
			DrugName:   drugName,
			PayerID:    patient.Payer,
			Method:     profile.Method,
			Statement:  statement,
			CreatedAt:  time.Now(),
		}
		if err := p.records.Save(ctx, record); err != nil {
			// Persistence problems are reported but never fail the evaluation.
			p.logger.WithError(err).Error("Failed to persist submission record")
		}
	}

	return submission
}

// recordAudit appends an audit entry for an evaluation where authorization
// was required.
func (p *Pipeline) recordAudit(ctx context.Context, patient *domain.PatientRecord, drugName string, result *EvaluationResult) {
	if p.auditLog == nil || result.Analysis == nil {
		return
	}

	entry := &audit.Entry{
		PatientID:             patient.PatientID,
		DrugName:              drugName,
		PayerID:               patient.Payer,
		AuthorizationRequired: result.AuthorizationRequired,
		GapsFound:             result.Analysis.GapsFound,
		MetCriteria:           result.Analysis.Met,
		MissingCriteria:       result.Analysis.Missing,
	}
	if result.Submission != nil {
		entry.TrackingID = result.Submission.TrackingID
	}
	if err := p.auditLog.Save(ctx, entry); err != nil {
		p.logger.WithError(err).Error("Failed to write audit entry")
	}
}

func notify(observe func(StepEvent), step, message string) {
	if observe != nil {
		observe(StepEvent{Step: step, Message: message})
	}
}

func submissionMessage(s *domain.SubmissionResult) string {
	if s.Success {
		return fmt.Sprintf("submitted, tracking ID %s", s.TrackingID)
	}
	return fmt.Sprintf("submission failed: %s", s.Message)
}
