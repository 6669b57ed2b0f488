// Package sink delivers finalized alert events. Delivery is at-least-once;
// downstream consumers deduplicate by event_id.
package sink

import "store-sentinel/internal/models"

// Sink receives alert events in emission order. Emit is called from a single
// goroutine; implementations don't need their own serialization.
type Sink interface {
	Name() string
	Emit(ev models.AlertEvent) error
	Close() error
}
