package relay

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/valyala/fastjson"

	"private-messenger/internal/storage"
)

// Event names on the wire. Inbound and outbound share the envelope shape
// {"event": <name>, "data": {...}}.
const (
	evJoin           = "join"
	evSendMessage    = "send_message"
	evTypingStart    = "typing_start"
	evTypingStop     = "typing_stop"
	evReceiveMessage = "receive_message"
	evMessageSent    = "message_sent"
	evUserOnline     = "user_online"
	evUserOffline    = "user_offline"
	evError          = "error"
)

// ErrInvalidPayload marks an inbound event that failed boundary validation.
// Such events are dropped without touching registry or storage.
var ErrInvalidPayload = errors.New("invalid event payload")

// Inbound events as tagged variants, one per wire event name.
type (
	// JoinEvent binds the connection to a user identity.
	JoinEvent struct {
		UserID int64
	}

	// SendMessageEvent asks the router to persist and deliver a text message.
	SendMessageEvent struct {
		SenderID   int64
		ReceiverID int64
		ChatID     int64
		Text       string
	}

	// TypingEvent relays a typing indicator to the chat's other participant.
	TypingEvent struct {
		ChatID int64
		UserID int64
		Stop   bool
	}
)

// decoder validates raw socket frames and produces tagged inbound events.
// Parsers are pooled the same way the HTTP handlers pool theirs.
type decoder struct {
	pool fastjson.ParserPool
}

// decode returns one of the inbound event variants or ErrInvalidPayload.
// Unknown event names are invalid: the boundary rejects rather than letting
// malformed input crash anything downstream.
func (d *decoder) decode(raw []byte) (interface{}, error) {
	p := d.pool.Get()
	defer d.pool.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, ErrInvalidPayload
	}

	name := v.Get("event")
	if name == nil || name.Type() != fastjson.TypeString {
		return nil, ErrInvalidPayload
	}

	data := v.Get("data")
	if data == nil || data.Type() != fastjson.TypeObject {
		return nil, ErrInvalidPayload
	}

	switch string(v.GetStringBytes("event")) {
	case evJoin:
		userID, err := idField(data, "userId")
		if err != nil {
			return nil, err
		}
		return JoinEvent{UserID: userID}, nil

	case evSendMessage:
		senderID, err := idField(data, "senderId")
		if err != nil {
			return nil, err
		}
		receiverID, err := idField(data, "receiverId")
		if err != nil {
			return nil, err
		}
		chatID, err := idField(data, "chatId")
		if err != nil {
			return nil, err
		}
		text, err := stringField(data, "text")
		if err != nil {
			return nil, err
		}
		return SendMessageEvent{
			SenderID:   senderID,
			ReceiverID: receiverID,
			ChatID:     chatID,
			Text:       text,
		}, nil

	case evTypingStart, evTypingStop:
		chatID, err := idField(data, "chatId")
		if err != nil {
			return nil, err
		}
		userID, err := idField(data, "userId")
		if err != nil {
			return nil, err
		}
		return TypingEvent{
			ChatID: chatID,
			UserID: userID,
			Stop:   string(v.GetStringBytes("event")) == evTypingStop,
		}, nil
	}

	return nil, ErrInvalidPayload
}

// idField extracts a positive 64-bit integer identifier
func idField(v *fastjson.Value, name string) (int64, error) {
	field := v.Get(name)
	if field == nil {
		return 0, ErrInvalidPayload
	}

	id, err := field.Int64()
	if err != nil || id < 1 {
		return 0, ErrInvalidPayload
	}

	return id, nil
}

// stringField extracts a string field; emptiness is not checked here since
// whitespace trimming is the router's call
func stringField(v *fastjson.Value, name string) (string, error) {
	field := v.Get(name)
	if field == nil || field.Type() != fastjson.TypeString {
		return "", ErrInvalidPayload
	}

	return string(field.GetStringBytes()), nil
}

// SenderInfo is the display data attached to a delivered message. Name and
// email may be blank when the user directory lookup fails; delivery still
// proceeds with the bare id.
type SenderInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// MessageEvent is the outbound payload of receive_message and message_sent:
// the persisted message enriched with sender display data.
type MessageEvent struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chatId"`
	Sender    SenderInfo `json:"sender"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
}

func newMessageEvent(m storage.Message, sender SenderInfo) MessageEvent {
	return MessageEvent{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Sender:    sender,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

type userPayload struct {
	UserID int64 `json:"userId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// encodeEvent marshals an outbound event into its wire envelope
func encodeEvent(name string, data interface{}) ([]byte, error) {
	return json.Marshal(envelope{Event: name, Data: data})
}
