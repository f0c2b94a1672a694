package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpErrors.WithLabelValues("/api/test", http.MethodPost))
	ObserveHTTPRequest("/api/test", http.MethodPost, http.StatusOK, 20*time.Millisecond)
	ObserveHTTPRequest("/api/test", http.MethodPost, http.StatusBadGateway, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("/api/test", http.MethodPost, "502")))
	assert.Equal(t, before+1, testutil.ToFloat64(httpErrors.WithLabelValues("/api/test", http.MethodPost)))
}

func TestEngineCounters(t *testing.T) {
	ObserveIntent("balance", "idle")
	ObserveSideEffect("sent", "failure", 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(intents.WithLabelValues("balance", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sideEffects.WithLabelValues("sent", "failure")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	ObserveIntent("help", "idle")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chatwallet_intents_total{intent="help",state="idle"}`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
