package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth-engine/internal/domain"
	"github.com/prior-auth-engine/internal/rules"
)

const pipelineRules = `
rules:
  - payer: Payer_A
    drug: Ozemra
    requires_authorization: true
    criteria:
      diagnosis: E11.9
      lab: {name: HbA1c, min: 7.5}
      failed_therapy: Metformin
      requires_statement: true
  - payer: Payer_A
    drug: Amoxicillin
    requires_authorization: false
  - payer: Payer_A
    drug: GlycoLow
    requires_authorization: true
    criteria:
      lab: {name: Glucose, max: 70}
  - payer: Payer_D
    drug: GlycoLow
    requires_authorization: true
    criteria:
      lab: {name: Glucose, max: 70}
profiles:
  - payer: Payer_A
    method: API
    address: https://api.payera.com/priorauth
`

type stubGenerator struct {
	statement string
	err       error
	calls     int
	prompt    string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.statement, s.err
}

type stubTransport struct {
	result *domain.SubmissionResult
	err    error
	calls  int
	form   *domain.SubmissionForm
}

func (s *stubTransport) Submit(_ context.Context, form *domain.SubmissionForm, _ *domain.SubmissionProfile) (*domain.SubmissionResult, error) {
	s.calls++
	s.form = form
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestPipeline(t *testing.T, classifier domain.TextClassifier, generator domain.TextGenerator, transport domain.SubmissionTransport) *Pipeline {
	t.Helper()
	store, err := rules.Load([]byte(pipelineRules))
	require.NoError(t, err)

	logger := testLogger()
	return NewPipeline(logger, store, NewExtractor(logger, classifier), NewAnalyzer(logger), generator, transport, nil, nil)
}

func diabetesPatient() *domain.PatientRecord {
	return &domain.PatientRecord{
		PatientID: "PID-005",
		Name:      "Chen Wei",
		Payer:     "Payer_A",
		Diagnoses: []string{"E11.9"},
		Labs:      []domain.LabResult{{Name: "HbA1c", Value: 8.0}},
		Notes:     "The patient's response to Metformin has been unsatisfactory due to poor glycemic control, so we are discontinuing it.",
	}
}

func TestPipeline_AuthorizationNotRequired(t *testing.T) {
	classifier := &stubClassifier{}
	transport := &stubTransport{}
	pipeline := newTestPipeline(t, classifier, &stubGenerator{}, transport)

	patient := &domain.PatientRecord{PatientID: "PID-007", Name: "Mary Smith", Payer: "Payer_A", Diagnoses: []string{"J02.9"}}

	assert.False(t, pipeline.IsAuthorizationRequired(patient, "Amoxicillin"))

	result, err := pipeline.Evaluate(context.Background(), patient, "Amoxicillin")
	require.NoError(t, err)
	assert.False(t, result.AuthorizationRequired)
	assert.Nil(t, result.Analysis, "downstream analysis must not run")
	assert.Zero(t, classifier.calls)
	assert.Zero(t, transport.calls)
}

func TestPipeline_UnknownPayerDrugPair(t *testing.T) {
	classifier := &stubClassifier{}
	pipeline := newTestPipeline(t, classifier, &stubGenerator{}, &stubTransport{})

	patient := &domain.PatientRecord{PatientID: "PID-099", Payer: "Payer_Z"}
	result, err := pipeline.Evaluate(context.Background(), patient, "Anything")
	require.NoError(t, err)

	assert.False(t, result.AuthorizationRequired)
	assert.Nil(t, result.Analysis)
	assert.Zero(t, classifier.calls)
}

func TestPipeline_EndToEnd_AllCriteriaMet(t *testing.T) {
	classifier := &stubClassifier{result: failureResult("Metformin", 0.92)}
	generator := &stubGenerator{statement: "Chen Wei has type 2 diabetes with an HbA1c of 8.0 despite Metformin therapy."}
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true, TrackingID: "PA-12345"}}
	pipeline := newTestPipeline(t, classifier, generator, transport)

	result, err := pipeline.Evaluate(context.Background(), diabetesPatient(), "Ozemra")
	require.NoError(t, err)

	assert.True(t, result.AuthorizationRequired)
	require.NotNil(t, result.Analysis)
	assert.False(t, result.Analysis.GapsFound)
	require.Len(t, result.Analysis.Met, 3)
	assert.Equal(t, "Diagnosis criteria met: E11.9", result.Analysis.Met[0])
	assert.Contains(t, result.Analysis.Met[1], "8.0")
	assert.Contains(t, result.Analysis.Met[1], ">= 7.5")
	assert.Equal(t, "Failed therapy criteria met: Metformin", result.Analysis.Met[2])

	require.NotNil(t, result.Submission)
	assert.True(t, result.Submission.Success)
	assert.Equal(t, "PA-12345", result.Submission.TrackingID)

	// The generated statement travels verbatim into the submission payload.
	assert.Equal(t, generator.statement, result.Statement)
	require.NotNil(t, transport.form)
	assert.Equal(t, generator.statement, transport.form.StatementOfNecessity)
	assert.Equal(t, []string{"E11.9"}, transport.form.ClinicalJustification.Diagnoses)
}

func TestPipeline_StatementPromptCarriesMetCriteria(t *testing.T) {
	classifier := &stubClassifier{result: failureResult("Metformin", 0.92)}
	generator := &stubGenerator{statement: "Statement."}
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true, TrackingID: "PA-1"}}
	pipeline := newTestPipeline(t, classifier, generator, transport)

	_, err := pipeline.Evaluate(context.Background(), diabetesPatient(), "Ozemra")
	require.NoError(t, err)

	assert.Equal(t, 1, generator.calls)
	assert.Contains(t, generator.prompt, "Chen Wei")
	assert.Contains(t, generator.prompt, "Diagnosis criteria met: E11.9")
	assert.Contains(t, generator.prompt, "Proposed New Medication: Ozemra")
}

func TestPipeline_GapsHaltSubmission(t *testing.T) {
	classifier := &stubClassifier{result: failureResult("Metformin", 0.92)}
	generator := &stubGenerator{statement: "unused"}
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true}}
	pipeline := newTestPipeline(t, classifier, generator, transport)

	patient := diabetesPatient()
	patient.Labs = []domain.LabResult{{Name: "HbA1c", Value: 7.0}}

	result, err := pipeline.Evaluate(context.Background(), patient, "Ozemra")
	require.NoError(t, err)

	require.NotNil(t, result.Analysis)
	assert.True(t, result.Analysis.GapsFound)
	assert.Nil(t, result.Submission, "submission must not be attempted when gaps exist")
	assert.Zero(t, generator.calls)
	assert.Zero(t, transport.calls)
}

func TestPipeline_StatementNotRequired(t *testing.T) {
	generator := &stubGenerator{statement: "unused"}
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true, TrackingID: "PA-2"}}
	pipeline := newTestPipeline(t, &stubClassifier{}, generator, transport)

	patient := &domain.PatientRecord{
		PatientID: "PID-008",
		Name:      "David Miller",
		Payer:     "Payer_A",
		Labs:      []domain.LabResult{{Name: "Glucose", Value: 65}},
		Notes:     "Routine checkup.",
	}

	result, err := pipeline.Evaluate(context.Background(), patient, "GlycoLow")
	require.NoError(t, err)

	assert.False(t, result.Analysis.GapsFound)
	assert.Equal(t, "Not Required", result.Statement)
	assert.Zero(t, generator.calls)
	require.NotNil(t, transport.form)
	assert.Equal(t, "Not Required", transport.form.StatementOfNecessity)
}

func TestPipeline_MissingSubmissionProfile(t *testing.T) {
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true}}
	pipeline := newTestPipeline(t, &stubClassifier{}, &stubGenerator{}, transport)

	// Payer_D has a rule but no submission profile.
	patient := &domain.PatientRecord{
		PatientID: "PID-012",
		Payer:     "Payer_D",
		Labs:      []domain.LabResult{{Name: "Glucose", Value: 65}},
	}

	result, err := pipeline.Evaluate(context.Background(), patient, "GlycoLow")
	require.NoError(t, err, "a missing profile is a structured failure, not an error")

	require.NotNil(t, result.Submission)
	assert.False(t, result.Submission.Success)
	assert.Contains(t, result.Submission.Message, "no submission profile for Payer_D")
	assert.Zero(t, transport.calls)
}

func TestPipeline_TransportRejection(t *testing.T) {
	transport := &stubTransport{err: errors.New("payer endpoint returned 503")}
	pipeline := newTestPipeline(t, &stubClassifier{}, &stubGenerator{}, transport)

	patient := &domain.PatientRecord{
		PatientID: "PID-008",
		Payer:     "Payer_A",
		Labs:      []domain.LabResult{{Name: "Glucose", Value: 65}},
	}

	result, err := pipeline.Evaluate(context.Background(), patient, "GlycoLow")
	require.NoError(t, err)

	require.NotNil(t, result.Submission)
	assert.False(t, result.Submission.Success)
	assert.Contains(t, result.Submission.Message, "503")
}

func TestPipeline_CollaboratorFailurePropagates(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("classifier unreachable")}
	pipeline := newTestPipeline(t, classifier, &stubGenerator{}, &stubTransport{})

	_, err := pipeline.Evaluate(context.Background(), diabetesPatient(), "Ozemra")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}

func TestPipeline_GeneratorFailurePropagates(t *testing.T) {
	classifier := &stubClassifier{result: failureResult("Metformin", 0.92)}
	generator := &stubGenerator{err: errors.New("generator unreachable")}
	pipeline := newTestPipeline(t, classifier, generator, &stubTransport{})

	_, err := pipeline.Evaluate(context.Background(), diabetesPatient(), "Ozemra")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCollaborator)
}

func TestPipeline_ObserverReceivesSteps(t *testing.T) {
	classifier := &stubClassifier{result: failureResult("Metformin", 0.92)}
	generator := &stubGenerator{statement: "Statement."}
	transport := &stubTransport{result: &domain.SubmissionResult{Success: true, TrackingID: "PA-3"}}
	pipeline := newTestPipeline(t, classifier, generator, transport)

	var steps []string
	_, err := pipeline.EvaluateWithObserver(context.Background(), diabetesPatient(), "Ozemra", func(e StepEvent) {
		steps = append(steps, e.Step)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{StepRequirementCheck, StepGapAnalysis, StepStatement, StepSubmission}, steps)
}

func TestPipeline_InvalidPatientRecord(t *testing.T) {
	pipeline := newTestPipeline(t, &stubClassifier{}, &stubGenerator{}, &stubTransport{})

	_, err := pipeline.Evaluate(context.Background(), &domain.PatientRecord{Name: "No IDs"}, "Ozemra")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "patient"))
}
