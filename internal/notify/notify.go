// Package notify hands finished events (conquered, lost, level-up, badge
// unlocked) to the external delivery service. Delivery is fire-and-forget:
// failures are logged and never propagate into the operation that produced
// the event.
package notify

import (
	"context"
)

// Notifier is the delivery capability injected into whichever component
// needs to emit events. Implementations must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, body string)
}

// Nop discards every notification. Used in tests and when no delivery
// backend is configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, userID uint, title, body string) {}
