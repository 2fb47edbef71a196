package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/prior-auth-engine/internal/domain"
)

// ClassifierClient calls a zero-shot text-classification service over HTTP.
// It implements domain.TextClassifier. Retry and timeout policy live here,
// at the collaborator-invocation boundary, not inside the evaluation engine.
type ClassifierClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      ClassificationCache
	logger     *logrus.Logger
}

// NewClassifierClient creates a classifier client. cache may be nil to
// disable caching.
func NewClassifierClient(config domain.CollaboratorConfig, cache ClassificationCache, logger *logrus.Logger) *ClassifierClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "TextClassifier",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ClassifierClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		breaker:    breaker,
		cache:      cache,
		logger:     logger,
	}
}

// classifyRequest is the wire format of the classification service.
type classifyRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters classifyParameters `json:"parameters"`
}

type classifyParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
}

type classifyResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// Classify sends the text and candidate hypotheses to the classification
// service and returns the confidence-ranked result.
func (c *ClassifierClient) Classify(ctx context.Context, text string, candidateLabels []string, hypothesisTemplate string) (*domain.ClassificationResult, error) {
	key := CacheKey(text, candidateLabels, hypothesisTemplate)
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			c.logger.WithField("key", key).Debug("Classification cache hit")
			return cached, nil
		}
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("classifier rate limit: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doClassify(ctx, text, candidateLabels, hypothesisTemplate)
	})
	if err != nil {
		return nil, err
	}

	classification := result.(*domain.ClassificationResult)
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, classification); err != nil {
			c.logger.WithError(err).Warn("Failed to cache classification result")
		}
	}
	return classification, nil
}

func (c *ClassifierClient) doClassify(ctx context.Context, text string, candidateLabels []string, hypothesisTemplate string) (*domain.ClassificationResult, error) {
	body, err := json.Marshal(classifyRequest{
		Inputs: text,
		Parameters: classifyParameters{
			CandidateLabels:    candidateLabels,
			HypothesisTemplate: hypothesisTemplate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding classifier response: %w", err)
	}
	if len(parsed.Labels) == 0 || len(parsed.Labels) != len(parsed.Scores) {
		return nil, fmt.Errorf("classifier returned %d labels and %d scores", len(parsed.Labels), len(parsed.Scores))
	}

	return &domain.ClassificationResult{
		Labels: parsed.Labels,
		Scores: parsed.Scores,
	}, nil
}
