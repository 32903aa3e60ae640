package syncsvc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chn0318/partsync/partition"
	"github.com/chn0318/partsync/syncmgr"
)

// Watchdog polls the focused long-term sync on the cluster tick and aborts
// it after repeated no-progress observations.
type Watchdog struct {
	mgr      *syncmgr.Manager
	interval time.Duration
	log      zerolog.Logger
}

// NewWatchdog creates a watchdog ticking every interval.
func NewWatchdog(mgr *syncmgr.Manager, interval time.Duration, logger zerolog.Logger) *Watchdog {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watchdog{
		mgr:      mgr,
		interval: interval,
		log:      logger.With().Str("component", "watchdog").Logger(),
	}
}

// Run ticks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if pID := w.mgr.CheckCurrentSyncStatus(); pID != partition.UndefID {
				w.mgr.AbortLongtermSync(pID)
			}
		}
	}
}
