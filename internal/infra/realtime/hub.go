package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	domainchat "socialnet/internal/domain/chat"
)

// ErrHubClosed is returned when joining a hub that has been shut down.
var ErrHubClosed = errors.New("realtime: hub closed")

// Subscriber is a live client session that can receive encoded frames.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
	Close(code int, reason string)
}

// Hub is the per-user topic registry. Each user id is a topic; every
// connection joined to it receives the events published there.
type Hub struct {
	mu          sync.RWMutex
	topics      map[string]map[string]Subscriber // userID -> subscriberID -> subscriber
	memberships map[string]map[string]struct{}   // subscriberID -> userIDs
	closed      bool
	logger      *slog.Logger
}

// NewHub builds an empty hub. Pass nil logger for default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		topics:      make(map[string]map[string]Subscriber),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger.With("component", "hub"),
	}
}

// Join subscribes sub to the topic of userID.
func (h *Hub) Join(sub Subscriber, userID string) error {
	userID = strings.TrimSpace(userID)
	if sub == nil || userID == "" {
		return errors.New("realtime: subscriber and user id are required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	topic := h.topics[userID]
	if topic == nil {
		topic = make(map[string]Subscriber)
		h.topics[userID] = topic
	}
	topic[sub.ID()] = sub

	joined := h.memberships[sub.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		h.memberships[sub.ID()] = joined
	}
	joined[userID] = struct{}{}

	h.logger.Debug("subscriber joined", "user_id", userID, "sub_id", sub.ID())
	return nil
}

// Leave drops every subscription held by sub.
func (h *Hub) Leave(sub Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID := range h.memberships[sub.ID()] {
		topic := h.topics[userID]
		delete(topic, sub.ID())
		if len(topic) == 0 {
			delete(h.topics, userID)
		}
	}
	delete(h.memberships, sub.ID())
}

// Deliver encodes event once and hands it to every subscriber of userID.
// It returns the number of subscribers that accepted the frame.
func (h *Hub) Deliver(userID string, event domainchat.Event) int {
	h.mu.RLock()
	topic := h.topics[strings.TrimSpace(userID)]
	if len(topic) == 0 {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]Subscriber, 0, len(topic))
	for _, sub := range topic {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode event failed", "event", event.Type, "error", err)
		return 0
	}
	delivered := 0
	for _, sub := range targets {
		if err := sub.Send(payload); err != nil {
			h.logger.Debug("dropped event for subscriber", "user_id", userID, "sub_id", sub.ID(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Publish implements chat.Publisher for in-process fan-out.
func (h *Hub) Publish(_ context.Context, userID string, event domainchat.Event) error {
	if h.Deliver(userID, event) == 0 {
		return domainchat.ErrChannelUnavailable
	}
	return nil
}

// Subscribers reports how many live subscribers a user topic has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[strings.TrimSpace(userID)])
}

// Close detaches and closes every subscriber. Further joins fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	seen := make(map[string]Subscriber)
	for _, topic := range h.topics {
		for id, sub := range topic {
			seen[id] = sub
		}
	}
	h.topics = make(map[string]map[string]Subscriber)
	h.memberships = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, sub := range seen {
		sub.Close(CloseGoingAway, "server shutdown")
	}
	h.logger.Debug("hub closed", "subscribers", len(seen))
}

var _ domainchat.Publisher = (*Hub)(nil)
