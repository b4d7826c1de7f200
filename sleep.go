package gnublin

import (
	"context"
	"time"
)

// Sleep pauses for d or until ctx is done, whichever comes first. A cancelled
// context is reported even when d is zero.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
