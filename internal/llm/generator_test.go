package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorClient_Generate(t *testing.T) {
	var gotRequest generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		json.NewEncoder(w).Encode([]generateResponse{
			{GeneratedText: "  This letter certifies medical necessity.  "},
		})
	}))
	defer server.Close()

	client := NewGeneratorClient(collaboratorConfig(server.URL), testLogger())

	text, err := client.Generate(context.Background(), "Generate a statement.", 100, 1.2)
	require.NoError(t, err)

	assert.Equal(t, "Generate a statement.", gotRequest.Inputs)
	assert.Equal(t, 100, gotRequest.Parameters.MaxNewTokens)
	assert.InDelta(t, 1.2, gotRequest.Parameters.RepetitionPenalty, 1e-9)
	assert.Equal(t, "This letter certifies medical necessity.", text)
}

func TestGeneratorClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]generateResponse{})
	}))
	defer server.Close()

	client := NewGeneratorClient(collaboratorConfig(server.URL), testLogger())

	_, err := client.Generate(context.Background(), "prompt", 100, 1.2)
	require.Error(t, err)
}

func TestGeneratorClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGeneratorClient(collaboratorConfig(server.URL), testLogger())

	_, err := client.Generate(context.Background(), "prompt", 100, 1.2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
