// Package sweeper runs the periodic reclamation pass over expired
// reservations.  The ledger already sweeps lazily before every
// availability check and reservation attempt; this loop additionally
// reclaims codes whose orders are never touched again, so stock does
// not sit parked behind abandoned checkouts.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Ledger is the slice of the reservation manager the sweeper drives.
type Ledger interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Run blocks, sweeping every interval until ctx is cancelled.  Sweep
// failures are logged and retried on the next tick; they never stop the
// loop.
func Run(ctx context.Context, l Ledger, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.SweepExpired(ctx); err != nil {
				log.Warn("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}
