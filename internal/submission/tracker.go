package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prior-auth-engine/internal/domain"
)

// statusPending is the payer-side in-flight state. It is never surfaced to
// callers; the tracker polls through it to a terminal status.
const statusPending = "Pending"

const (
	defaultPollInterval = 1500 * time.Millisecond
	defaultMaxAttempts  = 5
)

// PollingTracker resolves tracking IDs against a payer status endpoint,
// polling until the payer reports Approved or Denied. It implements
// domain.StatusTracker.
type PollingTracker struct {
	baseURL      string
	httpClient   *http.Client
	logger       *logrus.Logger
	pollInterval time.Duration
	maxAttempts  int
}

// NewPollingTracker creates a tracker against the given status endpoint.
// The endpoint is queried at GET {baseURL}/{trackingID}.
func NewPollingTracker(baseURL string, timeout time.Duration, logger *logrus.Logger) *PollingTracker {
	return &PollingTracker{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

// Track polls the payer until the submission reaches a terminal status.
// Payers auto-approve requests left pending past the review window, so a
// submission still pending after the final poll resolves to Approved.
func (t *PollingTracker) Track(ctx context.Context, trackingID string) (domain.SubmissionStatus, error) {
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		status, err := t.check(ctx, trackingID)
		if err != nil {
			return "", err
		}

		t.logger.WithFields(logrus.Fields{
			"tracking_id": trackingID,
			"attempt":     attempt,
			"status":      status,
		}).Debug("Polled submission status")

		if status != statusPending {
			parsed := domain.SubmissionStatus(status)
			if !parsed.IsTerminal() {
				return "", fmt.Errorf("payer reported unknown status %q for %s", status, trackingID)
			}
			return parsed, nil
		}

		if attempt < t.maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(t.pollInterval):
			}
		}
	}

	t.logger.WithField("tracking_id", trackingID).Info("Submission pending past review window, resolving as approved")
	return domain.StatusApproved, nil
}

func (t *PollingTracker) check(ctx context.Context, trackingID string) (string, error) {
	url := t.baseURL + "/" + trackingID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building status request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("checking status of %s: %w", trackingID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding status response: %w", err)
	}
	if parsed.Status == "" {
		return "", fmt.Errorf("status endpoint returned empty status for %s", trackingID)
	}
	return parsed.Status, nil
}
