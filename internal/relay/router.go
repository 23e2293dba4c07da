package relay

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"private-messenger/internal/storage"
)

// ErrEmptyText rejects a send whose text is blank after trimming. Nothing is
// persisted and no event is emitted.
var ErrEmptyText = errors.New("message text is empty")

// MessageStore is the durable-storage gateway the router depends on.
// *storage.Store satisfies it.
type MessageStore interface {
	CreateMessage(ctx context.Context, chat, sender int64, text string) (storage.Message, error)
	ChatByID(ctx context.Context, chat int64) (storage.Chat, error)
}

// UserDirectory resolves sender display data for delivered messages.
// *storage.Store satisfies it.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (storage.User, error)
}

// Router consumes inbound events, consults the registry and delivers outbound
// events to zero or one target connection, plus presence fan-out to everyone
// else. It holds no lock of its own: the registry guards its map and storage
// serializes its writes.
type Router struct {
	logger   *zap.SugaredLogger
	registry *Registry
	store    MessageStore
	users    UserDirectory
}

func NewRouter(logger *zap.SugaredLogger, registry *Registry, store MessageStore, users UserDirectory) *Router {
	return &Router{
		logger:   logger,
		registry: registry,
		store:    store,
		users:    users,
	}
}

// RouteMessage persists the message and then delivers it: receive_message to
// the receiver if online, message_sent back to the sender if still online.
// Persistence strictly precedes delivery so a delivered message is always
// saved; a persistence failure aborts with zero events emitted. An offline
// receiver is skipped, not queued: the recovery path is a later history fetch.
func (rt *Router) RouteMessage(ctx context.Context, sender, receiver, chat int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	msg, err := rt.store.CreateMessage(ctx, chat, sender, text)
	if err != nil {
		return err
	}

	event := newMessageEvent(msg, rt.senderInfo(ctx, sender))

	if target, ok := rt.registry.Lookup(receiver); ok {
		payload, err := encodeEvent(evReceiveMessage, event)
		if err != nil {
			return err
		}
		if !target.enqueue(payload) {
			rt.logger.Debugf("Receiver %d dropped message %d: send buffer full or connection closing", receiver, msg.ID)
		}
	} else {
		rt.logger.Debugf("Receiver %d offline, message %d awaits history fetch", receiver, msg.ID)
	}

	// sender absence is a disconnect race, tolerated silently
	if origin, ok := rt.registry.Lookup(sender); ok {
		payload, err := encodeEvent(evMessageSent, event)
		if err != nil {
			return err
		}
		origin.enqueue(payload)
	}

	return nil
}

// RouteTyping forwards a typing indicator to the chat's other participant.
// Pure relay: no persistence, no error surface, unresolvable chats or offline
// peers are dropped silently.
func (rt *Router) RouteTyping(ctx context.Context, chat, user int64, stop bool) {
	record, err := rt.store.ChatByID(ctx, chat)
	if err != nil {
		rt.logger.Debugf("Typing event for unresolvable chat %d: %v", chat, err)
		return
	}

	peer, ok := record.OtherParticipant(user)
	if !ok {
		rt.logger.Debugf("Typing event from user %d who is not in chat %d", user, chat)
		return
	}

	target, ok := rt.registry.Lookup(peer)
	if !ok {
		return
	}

	name := evTypingStart
	if stop {
		name = evTypingStop
	}

	payload, err := encodeEvent(name, userPayload{UserID: user})
	if err != nil {
		return
	}
	target.enqueue(payload)
}

// BroadcastPresence notifies every bound connection except the user's own
// that the user went online or offline. Best-effort fan-out over a registry
// snapshot taken at call time.
func (rt *Router) BroadcastPresence(online bool, user int64) {
	name := evUserOffline
	if online {
		name = evUserOnline
	}

	payload, err := encodeEvent(name, userPayload{UserID: user})
	if err != nil {
		return
	}

	for _, c := range rt.registry.Snapshot() {
		if c.identity == user {
			continue
		}
		c.enqueue(payload)
	}
}

// senderInfo enriches a message with display data from the user directory,
// degrading to a bare id when the lookup fails
func (rt *Router) senderInfo(ctx context.Context, sender int64) SenderInfo {
	u, err := rt.users.UserByID(ctx, sender)
	if err != nil {
		rt.logger.Debugf("Sender %d display lookup failed: %v", sender, err)
		return SenderInfo{ID: sender}
	}
	return SenderInfo{ID: u.ID, Name: u.Name, Email: u.Email}
}
