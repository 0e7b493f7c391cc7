package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)

	// Nil receiver methods must never panic.
	m.RecordJobStarted("wf-1")
	m.RecordAgentDispatch(0)
	m.RecordDeadLettered()
	assert.Equal(t, 503, httpStatus(t, m))
}

func TestMetricsRecordsJobLifecycle(t *testing.T) {
	m, err := NewMetrics(Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordJobStarted("wf-1")
	m.RecordJobCompleted("wf-1", "completed", 5*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsStarted.WithLabelValues("wf-1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsCompleted.WithLabelValues("wf-1", "completed")))
}

func TestMetricsTracksActiveAgents(t *testing.T) {
	m, err := NewMetrics(Config{Enabled: true, Namespace: "test2"})
	require.NoError(t, err)

	m.RecordAgentDispatch(0)
	m.RecordAgentDispatch(1)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.agentsActive))

	m.RecordAgentComplete("completed", time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.agentsActive))
}

func TestMetricsDLQSizeGauge(t *testing.T) {
	m, err := NewMetrics(Config{Enabled: true, Namespace: "test3"})
	require.NoError(t, err)

	m.RecordDeadLettered()
	m.SetDLQSize(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.dlqSize))
}

func httpStatus(t *testing.T, m *Metrics) int {
	t.Helper()
	rec := &statusRecorder{}
	m.Handler().ServeHTTP(rec, nil)
	return rec.status
}

type statusRecorder struct {
	status  int
	headers http.Header
}

func (s *statusRecorder) Header() http.Header {
	if s.headers == nil {
		s.headers = http.Header{}
	}
	return s.headers
}
func (s *statusRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (s *statusRecorder) WriteHeader(code int)        { s.status = code }
