package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveVerdict("model", true)
	r.ObserveFailure("upstream")
	r.AddTokens("cred-a", 10)
	r.AddPosts("fetched", 3)
	r.ObserveCycle(time.Second, nil)
	assert.NotNil(t, r.Handler())
}

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.ObserveVerdict("seller_veto", false)
	r.ObserveVerdict("seller_veto", false)
	r.ObserveFailure("quota_exhausted")
	r.AddTokens("cred-a", 52)
	r.AddTokens("cred-a", 0)
	r.ObserveCycle(2*time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.verdicts.WithLabelValues("seller_veto", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("quota_exhausted")))
	assert.Equal(t, 52.0, testutil.ToFloat64(r.tokens.WithLabelValues("cred-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.AddPosts("qualified", 4)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `commission_scout_posts_total{outcome="qualified"} 4`)
}
