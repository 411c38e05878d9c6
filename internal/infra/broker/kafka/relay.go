package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	domainchat "socialnet/internal/domain/chat"
)

const eventTypeHeader = "event-type"

// Envelope is the record value carried on the realtime topic.
type Envelope struct {
	UserID string           `json:"user_id"`
	Event  domainchat.Event `json:"event"`
}

// RecordPublisher is the producing side the relay needs.
type RecordPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Deliverer hands an event to the local subscribers of a user.
type Deliverer interface {
	Deliver(userID string, event domainchat.Event) int
}

// Relay publishes realtime events to Kafka so every instance, including this
// one, can deliver them to the subscribers it holds.
type Relay struct {
	Producer RecordPublisher
	Topic    string
}

// Publish implements chat.Publisher. Records are keyed by user id so events
// for one user stay ordered within a partition.
func (r Relay) Publish(ctx context.Context, userID string, event domainchat.Event) error {
	userID = strings.TrimSpace(userID)
	if r.Producer == nil || userID == "" {
		return domainchat.ErrChannelUnavailable
	}
	payload, err := json.Marshal(Envelope{UserID: userID, Event: event})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.Producer.Publish(ctx, r.Topic, userID, payload, map[string]string{eventTypeHeader: string(event.Type)}); err != nil {
		return fmt.Errorf("produce relay record: %w", err)
	}
	return nil
}

// RelayHandler decodes relay records and delivers them locally.
type RelayHandler struct {
	Hub    Deliverer
	Logger *slog.Logger
}

func (h RelayHandler) Handle(_ context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return errors.New("empty relay record")
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("decode relay envelope: %w", err)
	}
	if env.UserID == "" {
		env.UserID = string(msg.Key)
	}
	if env.UserID == "" || env.Event.Type == "" {
		return errors.New("relay record missing user or event type")
	}
	delivered := h.Hub.Deliver(env.UserID, env.Event)
	if h.Logger != nil {
		h.Logger.Debug("relay record delivered", "user_id", env.UserID, "event", env.Event.Type, "subscribers", delivered)
	}
	return nil
}

var _ domainchat.Publisher = Relay{}
