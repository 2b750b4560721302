package engine

import (
	"context"
	"fmt"
	"time"
)

// DefaultCooldown is the minimum gap between an author's confessions.
const DefaultCooldown = 5 * time.Minute

// cooldownRemaining returns how long the author still has to wait before
// confessing again, or zero if they are allowed now. An author with no prior
// confessions is always allowed.
func (e *Engine) cooldownRemaining(ctx context.Context, authorID int64) (time.Duration, error) {
	last, ok, err := e.store.LastConfessionAt(ctx, authorID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	elapsed := e.now().Sub(last)
	if elapsed >= e.cooldown {
		return 0, nil
	}
	return e.cooldown - elapsed, nil
}

// formatWait renders a remaining cooldown as "4m 59s".
func formatWait(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
