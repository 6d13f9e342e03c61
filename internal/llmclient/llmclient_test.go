package llmclient_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/event"
	"github.com/mlidstrom/castellan/internal/llmclient"
)

func TestHTTPClient_Analyze_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llmclient.Verdict{
			EventType:  event.EventTypeProcessCreation,
			RiskLevel:  event.RiskMedium,
			Confidence: 70,
			Summary:    "suspicious process tree",
		})
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{Endpoint: server.URL}, server.Client())

	verdict, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, event.RiskMedium, verdict.RiskLevel)
	assert.Equal(t, 70, verdict.Confidence)
}

func TestHTTPClient_Analyze_TimesOut(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{
		Endpoint:       server.URL,
		RequestTimeout: 10 * time.Millisecond,
	}, server.Client())

	_, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	assert.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestHTTPClient_Analyze_MalformedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{Endpoint: server.URL}, server.Client())

	_, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	assert.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestHTTPClient_Analyze_NonOKStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{Endpoint: server.URL}, server.Client())

	_, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	assert.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestHTTPClient_Analyze_InvalidRiskLevelIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"risk_level":"extreme"}`))
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{Endpoint: server.URL}, server.Client())

	_, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	assert.ErrorIs(t, err, llmclient.ErrLLMUnavailable)
}

func TestHTTPClient_Analyze_RateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llmclient.Verdict{RiskLevel: event.RiskLow})
	}))
	defer server.Close()

	client := llmclient.NewHTTPClient(llmclient.Config{
		Endpoint:      server.URL,
		RatePerSecond: 1000,
		Burst:         1,
	}, server.Client())

	_, err := client.Analyze(context.Background(), event.LogEvent{UniqueID: "1"}, nil)
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), event.LogEvent{UniqueID: "2"}, nil)
	require.NoError(t, err)
}
