package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "socialnet/internal/domain/chat"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	users  []string
	events []domainchat.Event
}

func (d *recordingDeliverer) Deliver(userID string, event domainchat.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append(d.users, userID)
	d.events = append(d.events, event)
	return 1
}

func TestRelayPublishProducesEnvelope(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.UserID != "bob" || env.Event.Type != domainchat.EventSeenUpdated || env.Event.MessageID != "m1" {
			return errors.New("unexpected envelope")
		}
		return nil
	})
	defer func() { require.NoError(t, sp.Close()) }()

	relay := Relay{Producer: NewProducerFrom(sp), Topic: "chat.realtime"}
	require.NoError(t, relay.Publish(context.Background(), " bob ", domainchat.SeenUpdated("c1", "m1")))
}

func TestRelayPublishSurfacesProducerErrors(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	defer func() { require.NoError(t, sp.Close()) }()

	relay := Relay{Producer: NewProducerFrom(sp), Topic: "chat.realtime"}
	err := relay.Publish(context.Background(), "bob", domainchat.SeenUpdated("c1", "m1"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestRelayWithoutProducer(t *testing.T) {
	err := Relay{}.Publish(context.Background(), "bob", domainchat.SeenUpdated("c1", "m1"))
	assert.ErrorIs(t, err, domainchat.ErrChannelUnavailable)
}

func TestRelayHandlerDelivers(t *testing.T) {
	hub := &recordingDeliverer{}
	handler := RelayHandler{Hub: hub}
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := domainchat.MessageReceived(domainchat.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice", Content: "hi", CreatedAt: created,
	}, &domainchat.Sender{ID: "alice", Name: "Alice"}, "ref")
	payload, err := json.Marshal(Envelope{UserID: "bob", Event: event})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), &sarama.ConsumerMessage{Key: []byte("bob"), Value: payload}))
	require.Len(t, hub.events, 1)
	assert.Equal(t, "bob", hub.users[0])
	got := hub.events[0]
	assert.Equal(t, domainchat.EventMessageReceived, got.Type)
	assert.Equal(t, "hi", got.Content)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, created.Equal(*got.CreatedAt))
	assert.Equal(t, "ref", got.ClientRef)
}

func TestRelayHandlerFallsBackToKey(t *testing.T) {
	hub := &recordingDeliverer{}
	payload := []byte(`{"event":{"type":"seen-updated","conversation_id":"c1","message_id":"m1"}}`)
	require.NoError(t, RelayHandler{Hub: hub}.Handle(context.Background(), &sarama.ConsumerMessage{Key: []byte("carol"), Value: payload}))
	assert.Equal(t, []string{"carol"}, hub.users)
}

func TestRelayHandlerRejectsBadRecords(t *testing.T) {
	handler := RelayHandler{Hub: &recordingDeliverer{}}
	assert.Error(t, handler.Handle(context.Background(), nil))
	assert.Error(t, handler.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("nope")}))
	assert.Error(t, handler.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"user_id":"bob","event":{}}`)}))
}
