package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/prior-auth-engine/internal/domain"
)

// GeneratorClient calls a text-generation service over HTTP. It implements
// domain.TextGenerator; the returned paragraph is opaque to the engine.
type GeneratorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewGeneratorClient creates a generator client.
func NewGeneratorClient(config domain.CollaboratorConfig, logger *logrus.Logger) *GeneratorClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "TextGenerator",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 2 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &GeneratorClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		rateLimit:  rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		breaker:    breaker,
		logger:     logger,
	}
}

// generateRequest is the wire format of the generation service.
type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type generateParameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

type generateResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Generate produces a free-text paragraph for the prompt.
func (g *GeneratorClient) Generate(ctx context.Context, prompt string, maxNewTokens int, repetitionPenalty float64) (string, error) {
	if err := g.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("generator rate limit: %w", err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.doGenerate(ctx, prompt, maxNewTokens, repetitionPenalty)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (g *GeneratorClient) doGenerate(ctx context.Context, prompt string, maxNewTokens int, repetitionPenalty float64) (string, error) {
	body, err := json.Marshal(generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:      maxNewTokens,
			RepetitionPenalty: repetitionPenalty,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generator returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed []generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding generator response: %w", err)
	}
	if len(parsed) == 0 || strings.TrimSpace(parsed[0].GeneratedText) == "" {
		return "", fmt.Errorf("generator returned no text")
	}

	return strings.TrimSpace(parsed[0].GeneratedText), nil
}
