package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ProviderCall("gemini", nil, time.Second)
	m.RetryAttempt("image", "timeout")
	m.CacheLookup("hit")
	m.ImageVariant("primary", true)
	m.ImageEdit("success")
	m.WorkflowStep("etsy_listing", "failed")
	m.HTTPRequest("/edit-image", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ProviderCall("gemini", errors.New("x"), time.Second)
	m.ProviderCall("gemini", nil, time.Second)
	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.WorkflowStep("pdf_generation", "failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("gemini", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `listify_workflow_steps_total{status="failed",step="pdf_generation"} 1`), body)
}
