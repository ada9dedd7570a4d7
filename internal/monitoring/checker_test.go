package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/config"
	"github.com/sells-group/mna-tracker/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	}
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(cfg), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}), NewAlerter(config.MonitoringConfig{}), nil, config.MonitoringConfig{})
	require.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check_SendsAlertsAndUpdatesGauges(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{
		WebhookURL:          ts.URL,
		BacklogThreshold:    5,
		LookbackWindowHours: 24,
	}
	st := &mockStore{counts: map[model.EnrichStatus]int{
		model.StatusPending:  9,
		model.StatusEnriched: 2,
	}}
	metrics := NewMetrics(prometheus.NewRegistry())
	checker := NewChecker(newTestCollector(st), NewAlerter(cfg), metrics, cfg)

	alerts := checker.Check(context.Background(), zap.NewNop())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBacklog, alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())

	assert.InDelta(t, 9, testutil.ToFloat64(metrics.announcements.WithLabelValues("pending")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.announcements.WithLabelValues("enriched")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.announcements.WithLabelValues("failed")), 0.001)
}

func TestChecker_Check_CollectError(t *testing.T) {
	st := &mockStore{countErr: assert.AnError}
	checker := NewChecker(newTestCollector(st), NewAlerter(config.MonitoringConfig{}), nil, config.MonitoringConfig{})

	assert.Nil(t, checker.Check(context.Background(), zap.NewNop()))
}
