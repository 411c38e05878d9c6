package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "socialnet/internal/domain/chat"
)

type fakeSubscriber struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	sendErr  error
	code     int
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeSubscriber) Close(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.code = code
}

func (f *fakeSubscriber) events(t *testing.T) []domainchat.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domainchat.Event, 0, len(f.frames))
	for _, frame := range f.frames {
		var ev domainchat.Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		out = append(out, ev)
	}
	return out
}

func TestHubDeliversToEveryConnectionOfUser(t *testing.T) {
	hub := NewHub(nil)
	phone := newFakeSubscriber("phone")
	laptop := newFakeSubscriber("laptop")
	other := newFakeSubscriber("other")
	require.NoError(t, hub.Join(phone, "alice"))
	require.NoError(t, hub.Join(laptop, "alice"))
	require.NoError(t, hub.Join(other, "bob"))

	n := hub.Deliver("alice", domainchat.SeenUpdated("c1", "m1"))
	assert.Equal(t, 2, n)
	assert.Len(t, phone.events(t), 1)
	assert.Len(t, laptop.events(t), 1)
	assert.Empty(t, other.events(t))
	assert.Equal(t, 2, hub.Subscribers("alice"))
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil)
	err := hub.Publish(context.Background(), "nobody", domainchat.SeenUpdated("c1", "m1"))
	assert.ErrorIs(t, err, domainchat.ErrChannelUnavailable)
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	sub := newFakeSubscriber("s1")
	require.NoError(t, hub.Join(sub, "alice"))
	hub.Leave(sub)

	assert.Equal(t, 0, hub.Deliver("alice", domainchat.SeenUpdated("c1", "m1")))
	assert.Empty(t, sub.events(t))
	assert.Equal(t, 0, hub.Subscribers("alice"))

	hub.Leave(sub)
	hub.Leave(nil)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	sub := newFakeSubscriber("s1")
	require.NoError(t, hub.Join(sub, "alice"))
	require.NoError(t, hub.Join(sub, "alice"))

	assert.Equal(t, 1, hub.Deliver("alice", domainchat.SeenUpdated("c1", "m1")))
	assert.Error(t, hub.Join(sub, " "))
	assert.Error(t, hub.Join(nil, "alice"))
}

func TestHubSkipsFailingSubscriber(t *testing.T) {
	hub := NewHub(nil)
	good := newFakeSubscriber("good")
	bad := newFakeSubscriber("bad")
	bad.sendErr = errors.New("broken pipe")
	require.NoError(t, hub.Join(good, "alice"))
	require.NoError(t, hub.Join(bad, "alice"))

	assert.Equal(t, 1, hub.Deliver("alice", domainchat.SeenUpdated("c1", "m1")))
	assert.NoError(t, hub.Publish(context.Background(), "alice", domainchat.SeenUpdated("c1", "m1")))
}

func TestHubPreservesPublishOrderPerSubscriber(t *testing.T) {
	hub := NewHub(nil)
	sub := newFakeSubscriber("s1")
	require.NoError(t, hub.Join(sub, "alice"))
	for i := 0; i < 10; i++ {
		hub.Deliver("alice", domainchat.SeenUpdated("c1", domainchat.MessageID(fmt.Sprintf("m%d", i))))
	}
	events := sub.events(t)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, domainchat.MessageID(fmt.Sprintf("m%d", i)), ev.MessageID)
	}
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	hub := NewHub(nil)
	sub := newFakeSubscriber("s1")
	require.NoError(t, hub.Join(sub, "alice"))

	hub.Close()
	hub.Close()

	assert.True(t, sub.closed)
	assert.Equal(t, CloseGoingAway, sub.code)
	assert.ErrorIs(t, hub.Join(newFakeSubscriber("s2"), "alice"), ErrHubClosed)
	assert.Equal(t, 0, hub.Subscribers("alice"))
}

func TestHubConcurrentJoinLeavePublish(t *testing.T) {
	hub := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			sub := newFakeSubscriber(fmt.Sprintf("s%d", i))
			user := fmt.Sprintf("u%d", i%3)
			for j := 0; j < 50; j++ {
				_ = hub.Join(sub, user)
				hub.Leave(sub)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Deliver(fmt.Sprintf("u%d", i%3), domainchat.SeenUpdated("c1", "m1"))
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, hub.Subscribers(fmt.Sprintf("u%d", i)))
	}
}
