// Command evaluate runs a single prior authorization evaluation from the
// command line: it reads a patient record from a JSON file, evaluates it
// against the payer rule document and prints the gap analysis report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/audit"
	"github.com/prior-auth-engine/internal/config"
	"github.com/prior-auth-engine/internal/domain"
	"github.com/prior-auth-engine/internal/engine"
	"github.com/prior-auth-engine/internal/llm"
	"github.com/prior-auth-engine/internal/rules"
	"github.com/prior-auth-engine/internal/submission"
)

func main() {
	var (
		patientPath = flag.String("patient", "", "path to the patient record JSON file (required)")
		drugName    = flag.String("drug", "", "requested drug name (required)")
		rulesPath   = flag.String("rules", "", "payer rules YAML document (default from config)")
		track       = flag.Bool("track", false, "poll submission status after a successful dispatch")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall evaluation timeout")
	)
	flag.Parse()

	if *patientPath == "" || *drugName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadLiteConfig()
	if *rulesPath != "" {
		cfg.RulesPath = *rulesPath
	}

	logger := newLogger(cfg)

	if err := run(cfg, logger, *patientPath, *drugName, *track, *timeout); err != nil {
		logger.WithError(err).Fatal("Evaluation failed")
	}
}

func run(cfg *config.LiteConfig, logger *logrus.Logger, patientPath, drugName string, track bool, timeout time.Duration) error {
	patient, err := loadPatient(patientPath)
	if err != nil {
		return err
	}

	ruleStore, err := rules.LoadFile(cfg.RulesPath, logger)
	if err != nil {
		return fmt.Errorf("loading payer rules: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	auditStore, err := audit.NewSQLiteStore(cfg.AuditDBPath())
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer auditStore.Close()

	cache := llm.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	classifier := llm.NewClassifierClient(domain.CollaboratorConfig{
		BaseURL:   cfg.ClassifierURL,
		Timeout:   30 * time.Second,
		RateLimit: 10,
	}, cache, logger)
	generator := llm.NewGeneratorClient(domain.CollaboratorConfig{
		BaseURL:   cfg.GeneratorURL,
		Timeout:   60 * time.Second,
		RateLimit: 5,
	}, logger)

	pipeline := engine.NewPipeline(
		logger,
		ruleStore,
		engine.NewExtractor(logger, classifier),
		engine.NewAnalyzer(logger),
		generator,
		submission.NewTransport(30*time.Second, logger),
		nil,
		auditStore,
	)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := pipeline.EvaluateWithObserver(ctx, patient, drugName, func(event engine.StepEvent) {
		fmt.Printf("[%s] %s\n", event.Step, event.Message)
	})
	if err != nil {
		return err
	}

	printReport(patient, drugName, result)

	if track && result.Submission != nil && result.Submission.Success {
		tracker := submission.NewPollingTracker(cfg.StatusURL, 15*time.Second, logger)
		status, err := tracker.Track(ctx, result.Submission.TrackingID)
		if err != nil {
			return fmt.Errorf("tracking submission: %w", err)
		}
		fmt.Printf("\nFinal status: %s\n", status)
	}

	return nil
}

func loadPatient(path string) (*domain.PatientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patient record: %w", err)
	}

	var patient domain.PatientRecord
	if err := json.Unmarshal(data, &patient); err != nil {
		return nil, fmt.Errorf("parsing patient record: %w", err)
	}
	return &patient, nil
}

func printReport(patient *domain.PatientRecord, drugName string, result *engine.EvaluationResult) {
	fmt.Printf("\nPatient: %s (%s)\nDrug: %s\nPayer: %s\n",
		patient.Name, patient.PatientID, drugName, result.PayerID)

	if !result.AuthorizationRequired {
		fmt.Println("\nPrior authorization is not required.")
		return
	}

	analysis := result.Analysis
	fmt.Println("\nMet criteria:")
	if len(analysis.Met) == 0 {
		fmt.Println("  (none)")
	}
	for _, line := range analysis.Met {
		fmt.Printf("  - %s\n", line)
	}

	if analysis.GapsFound {
		fmt.Println("\nMissing criteria:")
		for _, line := range analysis.Missing {
			fmt.Printf("  - %s\n", line)
		}
		fmt.Println("\nPlease address missing items before resubmitting.")
		return
	}

	if result.Statement != "" && result.Statement != "Not Required" {
		fmt.Printf("\nStatement of Medical Necessity:\n%s\n", result.Statement)
	}

	if result.Submission != nil {
		if result.Submission.Success {
			fmt.Printf("\nSubmitted. Tracking ID: %s\n", result.Submission.TrackingID)
		} else {
			fmt.Printf("\nSubmission failed: %s\n", result.Submission.Message)
		}
	}
}

func newLogger(cfg *config.LiteConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
