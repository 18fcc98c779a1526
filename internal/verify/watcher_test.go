package verify

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritaschain/vcp/internal/logfile"
)

type recordingAlerter struct {
	mu      sync.Mutex
	calls   int
	file    string
	report  *Report
	fired   chan struct{}
	fireOne sync.Once
}

func newRecordingAlerter() *recordingAlerter {
	return &recordingAlerter{fired: make(chan struct{})}
}

func (a *recordingAlerter) SendTamperAlert(file string, report *Report) error {
	a.mu.Lock()
	a.calls++
	a.file = file
	a.report = report
	a.mu.Unlock()
	a.fireOne.Do(func() { close(a.fired) })
	return nil
}

func (a *recordingAlerter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestWatcherIntactChainNoAlert(t *testing.T) {
	events := buildChain(t, 3, nil)
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, logfile.WriteEvents(path, events))

	alerter := newRecordingAlerter()
	w := NewWatcher(NewVerifier(DefaultPolicy(), ""), path, 10*time.Millisecond, alerter, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	require.Zero(t, alerter.callCount())
}

func TestWatcherAlertsOnTamper(t *testing.T) {
	events := buildChain(t, 3, nil)
	tampered := clone(events)
	tampered[1].Payload["n"] = float64(666)

	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, logfile.WriteEvents(path, tampered))

	alerter := newRecordingAlerter()
	w := NewWatcher(NewVerifier(DefaultPolicy(), ""), path, 10*time.Millisecond, alerter, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case <-alerter.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tamper alert")
	}
	w.Stop()

	require.Equal(t, path, alerter.file)
	require.NotNil(t, alerter.report)
	require.False(t, alerter.report.Valid)
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	events := buildChain(t, 2, nil)
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, logfile.WriteEvents(path, events))

	w := NewWatcher(NewVerifier(DefaultPolicy(), ""), path, 10*time.Millisecond, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	// Stop must return even though the loop exited via the context.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestWatcherMissingFileLogsOnly(t *testing.T) {
	alerter := newRecordingAlerter()
	path := filepath.Join(t.TempDir(), "missing.jsonl")
	w := NewWatcher(NewVerifier(DefaultPolicy(), ""), path, 10*time.Millisecond, alerter, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	w.Stop()

	// A read failure is operational, not tampering.
	require.Zero(t, alerter.callCount())
}
