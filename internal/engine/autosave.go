package engine

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Autosaver periodically flushes active adventures to the store. It is a
// redundancy layer: every state change already writes through synchronously,
// so a missed tick costs at most transcript growth since the last turn.
type Autosaver struct {
	manager  *Manager
	interval time.Duration
	log      *zap.Logger

	ticks   atomic.Int64
	flushed atomic.Int64
	failed  atomic.Int64
}

// AutosaveStats is a snapshot of the scheduler's counters.
type AutosaveStats struct {
	Ticks   int64 `json:"ticks"`
	Flushed int64 `json:"flushed"`
	Failed  int64 `json:"failed"`
}

func NewAutosaver(manager *Manager, interval time.Duration, log *zap.Logger) *Autosaver {
	return &Autosaver{
		manager:  manager,
		interval: interval,
		log:      log,
	}
}

// Run loops until the context is cancelled. A failing record never aborts
// the tick for other records, and a failing tick never stops the loop.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.Info("autosave scheduler started", zap.Duration("interval", a.interval))

	for {
		select {
		case <-ctx.Done():
			a.log.Info("autosave scheduler stopped",
				zap.Int64("ticks", a.ticks.Load()),
				zap.Int64("flushed", a.flushed.Load()))
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Autosaver) tick(ctx context.Context) {
	a.ticks.Inc()
	flushed, failed := a.manager.FlushActive(ctx)
	a.flushed.Add(int64(flushed))
	a.failed.Add(int64(failed))
	if flushed > 0 || failed > 0 {
		a.log.Debug("autosave tick",
			zap.Int("flushed", flushed),
			zap.Int("failed", failed))
	}
}

// Stats returns the scheduler's counters.
func (a *Autosaver) Stats() AutosaveStats {
	return AutosaveStats{
		Ticks:   a.ticks.Load(),
		Flushed: a.flushed.Load(),
		Failed:  a.failed.Load(),
	}
}
