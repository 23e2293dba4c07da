package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"private-messenger/internal/storage"
)

// fakeStore is an in-memory stand-in for the storage gateways.
type fakeStore struct {
	mu         sync.Mutex
	failCreate bool
	nextID     int64
	messages   []storage.Message
	chats      map[int64]storage.Chat
	users      map[int64]storage.User
}

var errStorageDown = errors.New("storage unavailable")

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats: make(map[int64]storage.Chat),
		users: make(map[int64]storage.User),
	}
}

func (f *fakeStore) CreateMessage(_ context.Context, chat, sender int64, text string) (storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return storage.Message{}, errStorageDown
	}

	f.nextID++
	m := storage.Message{ID: f.nextID, ChatID: chat, Sender: sender, Text: text}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) ChatByID(_ context.Context, chat int64) (storage.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.chats[chat]
	if !ok {
		return storage.Chat{}, storage.ErrChatNotExist
	}
	return c, nil
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return storage.User{}, storage.ErrUserNotExist
	}
	return u, nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type receivedEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain empties the client's send buffer into decoded events
func drain(t *testing.T, c *Client) []receivedEvent {
	t.Helper()

	var events []receivedEvent
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return events
			}
			var ev receivedEvent
			require.NoError(t, json.Unmarshal(payload, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventNames(events []receivedEvent) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Event)
	}
	return names
}

func newTestRouter(store *fakeStore) (*Router, *Registry) {
	registry := NewRegistry()
	return NewRouter(zap.NewNop().Sugar(), registry, store, store), registry
}

func TestRouteMessageWhitespaceOnly(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, registry := newTestRouter(store)

	sender := joinedClient(1)
	receiver := joinedClient(2)
	registry.Bind(1, sender)
	registry.Bind(2, receiver)

	err := router.RouteMessage(context.Background(), 1, 2, 3, " \t\n ")
	require.Equal(t, ErrEmptyText, err)

	require.Equal(t, 0, store.messageCount())
	require.Empty(t, drain(t, sender))
	require.Empty(t, drain(t, receiver))
}

func TestRouteMessagePersistFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failCreate = true
	router, registry := newTestRouter(store)

	sender := joinedClient(1)
	receiver := joinedClient(2)
	registry.Bind(1, sender)
	registry.Bind(2, receiver)

	err := router.RouteMessage(context.Background(), 1, 2, 3, "hi")
	require.Equal(t, errStorageDown, err)

	// persistence failed, so zero delivery events were emitted
	require.Empty(t, drain(t, sender))
	require.Empty(t, drain(t, receiver))
}

func TestRouteMessageBothOnline(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.users[1] = storage.User{ID: 1, Name: "alice", Email: "alice@example.com"}
	router, registry := newTestRouter(store)

	sender := joinedClient(1)
	receiver := joinedClient(2)
	registry.Bind(1, sender)
	registry.Bind(2, receiver)

	require.NoError(t, router.RouteMessage(context.Background(), 1, 2, 3, "hi"))
	require.Equal(t, 1, store.messageCount())

	got := drain(t, receiver)
	require.Equal(t, []string{evReceiveMessage}, eventNames(got))

	var delivered MessageEvent
	require.NoError(t, json.Unmarshal(got[0].Data, &delivered))
	require.Equal(t, int64(1), delivered.ID)
	require.Equal(t, int64(3), delivered.ChatID)
	require.Equal(t, "hi", delivered.Text)
	require.Equal(t, SenderInfo{ID: 1, Name: "alice", Email: "alice@example.com"}, delivered.Sender)

	confirmed := drain(t, sender)
	require.Equal(t, []string{evMessageSent}, eventNames(confirmed))

	var confirmation MessageEvent
	require.NoError(t, json.Unmarshal(confirmed[0].Data, &confirmation))
	require.Equal(t, delivered.ID, confirmation.ID)
}

func TestRouteMessageReceiverOffline(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, registry := newTestRouter(store)

	sender := joinedClient(1)
	registry.Bind(1, sender)

	require.NoError(t, router.RouteMessage(context.Background(), 1, 2, 3, "hi"))

	// message is stored for a later history fetch even though nothing fired at the receiver
	require.Equal(t, 1, store.messageCount())
	require.Equal(t, []string{evMessageSent}, eventNames(drain(t, sender)))
}

func TestRouteMessageSenderGone(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, registry := newTestRouter(store)

	receiver := joinedClient(2)
	registry.Bind(2, receiver)

	// sender disconnected mid-flight, its absence is tolerated
	require.NoError(t, router.RouteMessage(context.Background(), 1, 2, 3, "hi"))
	require.Equal(t, 1, store.messageCount())
	require.Equal(t, []string{evReceiveMessage}, eventNames(drain(t, receiver)))
}

func TestRouteMessageUnknownSenderDisplay(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, registry := newTestRouter(store)

	receiver := joinedClient(2)
	registry.Bind(2, receiver)

	require.NoError(t, router.RouteMessage(context.Background(), 1, 2, 3, "hi"))

	got := drain(t, receiver)
	require.Len(t, got, 1)

	// directory lookup failed, delivery degrades to a bare sender id
	var delivered MessageEvent
	require.NoError(t, json.Unmarshal(got[0].Data, &delivered))
	require.Equal(t, SenderInfo{ID: 1}, delivered.Sender)
}

func TestRouteTyping(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.chats[3] = storage.Chat{ID: 3, Participants: [2]int64{1, 2}}
	router, registry := newTestRouter(store)

	typist := joinedClient(1)
	peer := joinedClient(2)
	registry.Bind(1, typist)
	registry.Bind(2, peer)

	router.RouteTyping(context.Background(), 3, 1, false)
	router.RouteTyping(context.Background(), 3, 1, true)

	got := drain(t, peer)
	require.Equal(t, []string{evTypingStart, evTypingStop}, eventNames(got))

	var data struct {
		UserID int64 `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(got[0].Data, &data))
	require.Equal(t, int64(1), data.UserID)

	// the typist never hears their own indicator
	require.Empty(t, drain(t, typist))
}

func TestRouteTypingUnresolvable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.chats[3] = storage.Chat{ID: 3, Participants: [2]int64{1, 2}}
	router, registry := newTestRouter(store)

	bystander := joinedClient(2)
	registry.Bind(2, bystander)

	// unknown chat and non-participant are both dropped silently
	router.RouteTyping(context.Background(), 99, 1, false)
	router.RouteTyping(context.Background(), 3, 5, false)

	require.Empty(t, drain(t, bystander))
}

func TestBroadcastPresenceExcludesSelf(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	router, registry := newTestRouter(store)

	alice := joinedClient(1)
	bob := joinedClient(2)
	carol := joinedClient(3)
	registry.Bind(1, alice)
	registry.Bind(2, bob)
	registry.Bind(3, carol)

	router.BroadcastPresence(true, 1)

	require.Empty(t, drain(t, alice))
	require.Equal(t, []string{evUserOnline}, eventNames(drain(t, bob)))
	require.Equal(t, []string{evUserOnline}, eventNames(drain(t, carol)))

	router.BroadcastPresence(false, 1)
	require.Equal(t, []string{evUserOffline}, eventNames(drain(t, bob)))
}
