package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleCount gathers the registry and returns the number of samples and the
// sum of their counter or gauge values for the named family.
func sampleCount(t *testing.T, r *Recorder, name string) (int, float64) {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total float64
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return len(f.GetMetric()), total
	}
	return 0, 0
}

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.ObserveComputation("sum", OutcomeResolved, 10*time.Millisecond)
	r.ObserveComputation("sum", OutcomeFailed, time.Millisecond)
	r.ObserveComputation("resolve", OutcomeResolved, time.Millisecond)
	r.CycleFailures("sum", 2)
	r.CycleFailures("sum", 0)
	r.Command("create-resolver", ResultAccepted)
	r.Command("update-input", ResultRejected)
	r.ResolverCreated()
	r.ResolverCreated()
	r.ResolverDisposed()

	series, total := sampleCount(t, r, "liveresolver_computations_total")
	assert.Equal(t, 3, series)
	assert.Equal(t, 3.0, total)

	_, observed := sampleCount(t, r, "liveresolver_compute_duration_seconds")
	assert.Equal(t, 3.0, observed)

	_, cycles := sampleCount(t, r, "liveresolver_cycle_failures_total")
	assert.Equal(t, 2.0, cycles)

	series, _ = sampleCount(t, r, "liveresolver_commands_total")
	assert.Equal(t, 2, series)

	_, active := sampleCount(t, r, "liveresolver_active_resolvers")
	assert.Equal(t, 1.0, active)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveComputation("sum", OutcomeResolved, time.Second)
		r.CycleFailures("sum", 1)
		r.Command("dispose-resolver", ResultAccepted)
		r.ResolverCreated()
		r.ResolverDisposed()
	})
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Command("create-resolver", ResultAccepted)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `liveresolver_commands_total{command="create-resolver",result="accepted"} 1`)
	assert.Contains(t, string(body), "liveresolver_process_start_time_seconds")
}
