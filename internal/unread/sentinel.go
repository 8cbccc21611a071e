// ABOUTME: Cross-tab payment sentinel carried over shared durable storage
// ABOUTME: One tab raises payment_success_<taskId>; every other tab reconciles and clears it

package unread

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/store"
)

// SentinelPrefix prefixes the per-task payment sentinel key.
const SentinelPrefix = "payment_success_"

// SentinelKey returns the sentinel key for taskID.
func SentinelKey(taskID string) string {
	return SentinelPrefix + taskID
}

// RaisePaymentSentinel signals every other tab that taskID changed out of band.
func RaisePaymentSentinel(ctx context.Context, tab *store.Tab, taskID string) error {
	return tab.Set(ctx, SentinelKey(taskID), "true")
}

// SentinelWatcher reacts to sentinels raised by other tabs.
type SentinelWatcher struct {
	tab       *store.Tab
	reconcile func(ctx context.Context) error
	agg       *Aggregator
	logger    *slog.Logger
}

// NewSentinelWatcher creates a watcher. reconcile performs the full
// reconciliation (task list and conversation refresh); agg is recounted after it.
func NewSentinelWatcher(tab *store.Tab, agg *Aggregator, reconcile func(ctx context.Context) error, logger *slog.Logger) *SentinelWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SentinelWatcher{
		tab:       tab,
		reconcile: reconcile,
		agg:       agg,
		logger:    logger.With("component", "sentinel"),
	}
}

// Run consumes the tab's change feed until ctx is done or the tab closes.
func (w *SentinelWatcher) Run(ctx context.Context) {
	changes := w.tab.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			w.Handle(ctx, c)
		}
	}
}

// Handle processes one change. Only raised sentinels trigger work; the
// removal that follows is idempotent, so two tabs racing to clear the same
// key is harmless.
func (w *SentinelWatcher) Handle(ctx context.Context, c store.Change) {
	if c.Deleted || c.NewValue != "true" || !strings.HasPrefix(c.Key, SentinelPrefix) {
		return
	}
	taskID := strings.TrimPrefix(c.Key, SentinelPrefix)
	w.logger.Info("payment sentinel observed", "task_id", taskID, "origin", c.Origin)

	if w.reconcile != nil {
		if err := w.reconcile(ctx); err != nil {
			w.logger.Warn("reconciliation after sentinel failed", "task_id", taskID, "error", err)
		}
	}
	if w.agg != nil {
		if err := w.agg.Recount(ctx); err != nil {
			w.logger.Warn("recount after sentinel failed", "task_id", taskID, "error", err)
		}
	}
	if err := w.tab.Delete(ctx, c.Key); err != nil {
		w.logger.Warn("clearing sentinel failed", "key", c.Key, "error", err)
	}
}
