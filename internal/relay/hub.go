// Package relay forwards captured notifications to the single live
// consumer. Delivery is best effort and at most once: the hub never
// buffers for a future subscriber, and the Event Store, not the relay,
// is the durability path.
package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/macronotify/capture-api/internal/models"
)

// Subscriber receives live notification records. Implementations should
// return quickly; a Deliver error is logged and the record is not retried.
type Subscriber interface {
	Deliver(notif models.Notification) error
}

// Hub owns the current-subscriber slot. It holds at most one subscriber
// at any instant; attaching a new one implicitly replaces the old one,
// which receives no cancellation notice.
type Hub struct {
	mu     sync.Mutex
	sub    Subscriber
	token  uuid.UUID
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Attach installs sub as the live subscriber and returns a token the
// caller must present to Detach. Any previous subscriber is replaced.
func (h *Hub) Attach(sub Subscriber) uuid.UUID {
	token := uuid.New()

	h.mu.Lock()
	replaced := h.sub != nil
	h.sub = sub
	h.token = token
	h.mu.Unlock()

	h.logger.Info().Bool("replaced", replaced).Msg("subscriber attached")
	return token
}

// Detach removes the subscriber identified by token. A stale token (the
// subscriber was already replaced) and a double detach are both no-ops,
// so a replaced subscriber tearing itself down cannot evict its
// successor.
func (h *Hub) Detach(token uuid.UUID) {
	h.mu.Lock()
	if h.token != token {
		h.mu.Unlock()
		return
	}
	h.sub = nil
	h.token = uuid.UUID{}
	h.mu.Unlock()

	h.logger.Info().Msg("subscriber detached")
}

// Publish delivers notif to the attached subscriber, if any. With no
// subscriber the record is discarded. A delivery error is logged, never
// escalated.
func (h *Hub) Publish(notif models.Notification) {
	h.mu.Lock()
	sub := h.sub
	h.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Deliver(notif); err != nil {
		h.logger.Warn().
			Err(err).
			Int64("notification_id", notif.ID).
			Str("source_id", notif.SourceID).
			Msg("failed to deliver notification")
	}
}

// Attached reports whether a subscriber is currently installed.
func (h *Hub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub != nil
}
