package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Alerter receives tamper notifications from the watcher. Implemented
// by the alert manager; nil disables alerting.
type Alerter interface {
	SendTamperAlert(file string, report *Report) error
}

// Watcher periodically re-verifies a log file and raises an alert
// whenever the verdict flips to invalid. Verification is read-only, so
// the watcher never contends with the producer beyond file reads.
type Watcher struct {
	verifier *Verifier
	path     string
	interval time.Duration
	alerter  Alerter
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewWatcher(verifier *Verifier, path string, interval time.Duration, alerter Alerter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		verifier: verifier,
		path:     path,
		interval: interval,
		alerter:  alerter,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one immediate verification, then re-verifies on every
// tick until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.runOnce()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce()
			}
		}
	}()
}

func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Watcher) runOnce() {
	report, err := w.verifier.VerifyFile(w.path)
	if err != nil {
		w.logger.Error("verification aborted", "file", w.path, "error", err)
		return
	}

	if report.Valid {
		w.logger.Info("chain verified",
			"file", w.path,
			"events", report.TotalEvents,
			"merkle_root", short(report.MerkleRoot))
		return
	}

	w.logger.Warn("tampering detected",
		"file", w.path,
		"events", report.TotalEvents,
		"findings", len(report.Findings))

	if w.alerter != nil {
		if err := w.alerter.SendTamperAlert(w.path, report); err != nil {
			w.logger.Error("failed to send tamper alert", "error", err)
		}
	}
}
