package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/lemme_search/internal/model"
)

type fakeConn struct {
	in     chan []byte
	mu     sync.Mutex
	out    []PayloadEvent
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{in: make(chan []byte, 8)} }

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.in
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return 1, msg, nil
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, v.(PayloadEvent))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) events() []PayloadEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PayloadEvent(nil), f.out...)
}

func (f *fakeConn) send(t *testing.T, action Action, room string) {
	b, err := json.Marshal(ClientMessage{Action: action, Room: room})
	require.NoError(t, err)
	f.in <- b
}

func TestHubRoutesEventsToRoomMembers(t *testing.T) {
	h := NewHub()
	member, other := newFakeConn(), newFakeConn()
	go h.Serve(member)
	go h.Serve(other)

	member.send(t, ActionJoin, SearchRoom("r1"))
	other.send(t, ActionJoin, SearchRoom("r2"))
	require.Eventually(t, func() bool { return h.HasSubscribers("r1") && h.HasSubscribers("r2") },
		time.Second, 5*time.Millisecond)

	h.BroadcastAnswer("r1", model.ChoiceAnswer("OPENAI", model.SingleChoice, []string{"A"}))
	h.BroadcastCompleted("r1", model.Report{TotalProviders: 1})

	got := member.events()
	require.Len(t, got, 2)
	assert.Equal(t, EventSearchAnswered, got[0].Event)
	assert.Equal(t, "OPENAI", got[0].Provider)
	assert.Equal(t, EventSearchCompleted, got[1].Event)
	assert.Empty(t, other.events())
}

func TestHubLeaveAndDisconnect(t *testing.T) {
	h := NewHub()
	c := newFakeConn()
	done := make(chan struct{})
	go func() {
		h.Serve(c)
		close(done)
	}()

	c.send(t, ActionJoin, SearchRoom("r"))
	require.Eventually(t, func() bool { return h.HasSubscribers("r") }, time.Second, 5*time.Millisecond)

	c.send(t, ActionLeave, SearchRoom("r"))
	require.Eventually(t, func() bool { return !h.HasSubscribers("r") }, time.Second, 5*time.Millisecond)

	c.send(t, ActionJoin, SearchRoom("r"))
	require.Eventually(t, func() bool { return h.HasSubscribers("r") }, time.Second, 5*time.Millisecond)

	close(c.in)
	<-done
	assert.False(t, h.HasSubscribers("r"))
	assert.True(t, c.closed)
}

func TestHubServeJoinsInitialRooms(t *testing.T) {
	h := NewHub()
	c := newFakeConn()
	go h.Serve(c, SearchRoom("pre"))

	require.Eventually(t, func() bool { return h.HasSubscribers("pre") }, time.Second, 5*time.Millisecond)
	h.BroadcastCompleted("pre", model.Report{})
	assert.Len(t, c.events(), 1)
	close(c.in)
}
