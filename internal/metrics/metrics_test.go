package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.PostWritten("create")
	m.Sanitized("removed_elements", 2)
	m.Lookup("meili")
	m.StaleResponse("mention")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `feed_posts_total{op="create"} 1`)
	assert.Contains(t, string(body), `feed_sanitizer_removals_total{kind="removed_elements"} 2`)
	assert.Contains(t, string(body), `feed_stale_responses_total{engine="mention"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PostWritten("create")
	m.Upload(false)
	m.ObserveRequest(http.MethodGet, 200, 0.1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
