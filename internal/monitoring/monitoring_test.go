package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/model"
	"github.com/sells-group/einvoice-cli/internal/store"
)

type fakeRuns struct {
	runs []model.Run
	err  error
}

func (f *fakeRuns) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return f.runs, f.err
}

var now = time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)

func run(stage model.Stage, status model.RunStatus, age time.Duration) model.Run {
	return model.Run{Stage: stage, Status: status, CreatedAt: now.Add(-age)}
}

func newCollector(runs ...model.Run) *Collector {
	c := NewCollector(&fakeRuns{runs: runs})
	c.now = func() time.Time { return now }
	return c
}

func TestCollect(t *testing.T) {
	c := newCollector(
		run(model.StageFetch, model.RunStatusComplete, time.Hour),
		run(model.StageExtract, model.RunStatusFailed, 2*time.Hour),
		run(model.StageSend, model.RunStatusComplete, 3*time.Hour),
		run(model.StageSend, model.RunStatusComplete, 30*time.Hour),
		run(model.StageFetch, model.RunStatusRunning, 10*time.Minute),
		run(model.StageSend, model.RunStatusFailed, 72*time.Hour),
	)

	snap, err := c.Collect(context.Background(), 48)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 3, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Running)
	assert.InDelta(t, 0.25, snap.FailRate, 0.0001)
	assert.Equal(t, map[string]int{"extract": 1}, snap.FailedByStage)
	assert.Equal(t, now.Add(-3*time.Hour), snap.LastSend)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollect_ListError(t *testing.T) {
	c := NewCollector(&fakeRuns{err: errors.New("db down")})
	_, err := c.Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list runs")
}

func TestEvaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})
	snap := &MetricsSnapshot{Total: 6, Complete: 5, Failed: 1, FailRate: 1.0 / 6, LastSend: now, LookbackHours: 48}
	assert.Empty(t, a.Evaluate(snap))
}

func TestEvaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})
	snap := &MetricsSnapshot{
		Total: 4, Complete: 2, Failed: 2, FailRate: 0.5, LastSend: now, LookbackHours: 48,
		FailedByStage: map[string]int{"fetch": 2},
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "50.0%")
}

func TestEvaluate_TooFewRunsForRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})
	snap := &MetricsSnapshot{Total: 2, Complete: 1, Failed: 1, FailRate: 0.5, LastSend: now, LookbackHours: 48}
	assert.Empty(t, a.Evaluate(snap))
}

func TestEvaluate_NoReportSent(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 1})
	alerts := a.Evaluate(&MetricsSnapshot{Total: 2, Complete: 2, LookbackHours: 48})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoReportSent, alerts[0].Type)

	assert.Empty(t, a.Evaluate(&MetricsSnapshot{Total: 2, Complete: 2, LookbackHours: 12}))
	assert.Empty(t, a.Evaluate(&MetricsSnapshot{LookbackHours: 48}))
}

func TestStageFailed(t *testing.T) {
	a := StageFailed(model.StageSend, "14-03-2026", errors.New("535 authentication failed"))
	assert.Equal(t, AlertStageFailure, a.Type)
	assert.Equal(t, "send stage failed for 14-03-2026: 535 authentication failed", a.Message)
	assert.Equal(t, "send", a.Details["stage"])
}

func TestSendAlerts(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if alert.Type == AlertNoReportSent {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		got.Add(1)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		StageFailed(model.StageFetch, "14-03-2026", errors.New("portal down")),
		{Type: AlertNoReportSent},
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), got.Load())
}

func TestSendAlerts_Disabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.False(t, a.Enabled())
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertStageFailure}}))
}

func TestChecker_Check(t *testing.T) {
	var got atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { got.Add(1) }))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, FailureRateThreshold: 0.25, LookbackWindowHours: 48}
	c := NewChecker(newCollector(
		run(model.StageFetch, model.RunStatusFailed, time.Hour),
		run(model.StageFetch, model.RunStatusFailed, 25*time.Hour),
		run(model.StageFetch, model.RunStatusComplete, 26*time.Hour),
	), NewAlerter(cfg), cfg)

	alerts := c.Check(context.Background())
	assert.Len(t, alerts, 2)
	assert.Equal(t, int32(2), got.Load())

	assert.Empty(t, c.Check(context.Background()), "delivered alerts are held back")
	assert.Equal(t, int32(2), got.Load())

	c.now = func() time.Time { return time.Now().Add(49 * time.Hour) }
	assert.Len(t, c.Check(context.Background()), 2)
	assert.Equal(t, int32(4), got.Load())
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.MonitoringConfig{CheckIntervalSecs: 3600}
	c := NewChecker(newCollector(), NewAlerter(cfg), cfg)

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}
