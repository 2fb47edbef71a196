package submission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prior-auth-engine/internal/domain"
)

// statusSequenceServer serves the given statuses one per request, repeating
// the last entry once exhausted.
func statusSequenceServer(t *testing.T, statuses ...string) *httptest.Server {
	var calls int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/PA-12345", r.URL.Path)
		status := statuses[len(statuses)-1]
		if calls < len(statuses) {
			status = statuses[calls]
		}
		calls++
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
}

func newTestTracker(url string) *PollingTracker {
	tracker := NewPollingTracker(url, 5*time.Second, testLogger())
	tracker.pollInterval = time.Millisecond
	return tracker
}

func TestPollingTracker_ImmediateTerminal(t *testing.T) {
	server := statusSequenceServer(t, "Approved")
	defer server.Close()

	status, err := newTestTracker(server.URL).Track(context.Background(), "PA-12345")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, status)
}

func TestPollingTracker_PollsThroughPending(t *testing.T) {
	server := statusSequenceServer(t, "Pending", "Pending", "Denied")
	defer server.Close()

	status, err := newTestTracker(server.URL).Track(context.Background(), "PA-12345")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDenied, status)
}

func TestPollingTracker_PendingPastWindowResolvesApproved(t *testing.T) {
	server := statusSequenceServer(t, "Pending")
	defer server.Close()

	status, err := newTestTracker(server.URL).Track(context.Background(), "PA-12345")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, status)
}

func TestPollingTracker_UnknownStatus(t *testing.T) {
	server := statusSequenceServer(t, "Escalated")
	defer server.Close()

	_, err := newTestTracker(server.URL).Track(context.Background(), "PA-12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Escalated")
}

func TestPollingTracker_EndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestTracker(server.URL).Track(context.Background(), "PA-12345")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestPollingTracker_ContextCancelled(t *testing.T) {
	server := statusSequenceServer(t, "Pending")
	defer server.Close()

	tracker := newTestTracker(server.URL)
	tracker.pollInterval = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tracker.Track(ctx, "PA-12345")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
