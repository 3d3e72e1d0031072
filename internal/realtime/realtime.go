// Package realtime fans presentation updates out to connected views. A hub
// can bridge to NATS so API and worker processes sharing a league see each
// other's updates.
package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "leaguesim.updates"

// Update tells views which data went stale. Tags name the kinds of data
// ("gameSim", "newPhase", "playerMovement", ...).
type Update struct {
	Tags        []string        `json:"tags"`
	RedirectURL string          `json:"redirectUrl,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Origin      string          `json:"origin,omitempty"`
}

func (u Update) Has(tag string) bool { return slices.Contains(u.Tags, tag) }

// Hub is safe for concurrent use. A nil *Hub drops every update, which lets
// tests and one-shot commands run without one.
type Hub struct {
	origin string
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[chan Update]struct{}

	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		origin: uuid.NewString(),
		logger: logger,
		subs:   make(map[chan Update]struct{}),
	}
}

// Publish delivers u to local subscribers and, when bridged, to NATS. Slow
// subscribers miss updates rather than block the simulation.
func (h *Hub) Publish(u Update) {
	if h == nil {
		return
	}
	if u.Origin == "" {
		u.Origin = h.origin
	}
	h.fanOut(u)

	h.mu.RLock()
	nc, subject := h.nc, h.subject
	h.mu.RUnlock()
	if nc == nil || u.Origin != h.origin {
		return
	}
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Error("marshal update failed", "err", err)
		return
	}
	if err := nc.Publish(subject, data); err != nil {
		h.logger.Warn("publish update to nats failed", "subject", subject, "err", err)
	}
}

func (h *Hub) fanOut(u Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe returns a channel of updates and a function that unsubscribes
// and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ConnectNATS bridges the hub to subject on the NATS server at url. Updates
// published by other hubs are delivered to local subscribers; the hub's own
// updates coming back are ignored.
func (h *Hub) ConnectNATS(url, subject string) error {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url, nats.Name("leaguesim-"+h.origin[:8]))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var u Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			h.logger.Warn("bad update from nats", "err", err)
			return
		}
		if u.Origin == h.origin {
			return
		}
		h.fanOut(u)
	})
	if err == nil {
		err = nc.Flush()
	}
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	h.mu.Lock()
	h.nc, h.sub, h.subject = nc, sub, subject
	h.mu.Unlock()
	h.logger.Info("realtime bridged to nats", "url", url, "subject", subject)
	return nil
}

// Close drops the NATS bridge and closes every subscriber channel.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
		h.sub = nil
	}
	if h.nc != nil {
		h.nc.Close()
		h.nc = nil
	}
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
