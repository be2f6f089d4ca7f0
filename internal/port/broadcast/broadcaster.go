// Package broadcast defines the port for broadcasting real-time events to
// observer clients (dashboards, queued waiters).
package broadcast

import "context"

// Broadcaster sends real-time events to all connected observer clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
