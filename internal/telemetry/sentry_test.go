package telemetry

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentryMiddleware_DisabledPassesThrough(t *testing.T) {
	cleanup, err := InitSentry(SentryConfig{Enabled: false}, slog.Default())
	require.NoError(t, err)
	defer cleanup()

	called := false
	h := SentryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHTTPTransport_DisabledForwards(t *testing.T) {
	cleanup, err := InitSentry(SentryConfig{Enabled: false}, slog.Default())
	require.NoError(t, err)
	defer cleanup()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &HTTPTransport{}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
