package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	t.Parallel()

	var d decoder
	ev, err := d.decode([]byte(`{"event":"join","data":{"userId":7}}`))
	require.NoError(t, err)
	require.Equal(t, JoinEvent{UserID: 7}, ev)
}

func TestDecodeSendMessage(t *testing.T) {
	t.Parallel()

	var d decoder
	ev, err := d.decode([]byte(`{"event":"send_message","data":{"senderId":1,"receiverId":2,"chatId":3,"text":"hi"}}`))
	require.NoError(t, err)
	require.Equal(t, SendMessageEvent{SenderID: 1, ReceiverID: 2, ChatID: 3, Text: "hi"}, ev)
}

func TestDecodeTyping(t *testing.T) {
	t.Parallel()

	var d decoder

	ev, err := d.decode([]byte(`{"event":"typing_start","data":{"chatId":3,"userId":1}}`))
	require.NoError(t, err)
	require.Equal(t, TypingEvent{ChatID: 3, UserID: 1, Stop: false}, ev)

	ev, err = d.decode([]byte(`{"event":"typing_stop","data":{"chatId":3,"userId":1}}`))
	require.NoError(t, err)
	require.Equal(t, TypingEvent{ChatID: 3, UserID: 1, Stop: true}, ev)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	frames := []string{
		`not json`,
		`{}`,
		`{"event":"join"}`,
		`{"event":"join","data":[]}`,
		`{"event":42,"data":{}}`,
		`{"event":"join","data":{}}`,
		`{"event":"join","data":{"userId":"7"}}`,
		`{"event":"join","data":{"userId":0}}`,
		`{"event":"join","data":{"userId":-1}}`,
		`{"event":"send_message","data":{"senderId":1,"receiverId":2,"chatId":3}}`,
		`{"event":"send_message","data":{"senderId":1,"receiverId":2,"chatId":3,"text":7}}`,
		`{"event":"typing_start","data":{"chatId":3}}`,
		`{"event":"no_such_event","data":{}}`,
	}

	var d decoder
	for _, frame := range frames {
		_, err := d.decode([]byte(frame))
		require.Equal(t, ErrInvalidPayload, err, "frame: %s", frame)
	}
}

func TestEncodeEventEnvelope(t *testing.T) {
	t.Parallel()

	payload, err := encodeEvent(evUserOnline, userPayload{UserID: 5})
	require.NoError(t, err)

	var out struct {
		Event string `json:"event"`
		Data  struct {
			UserID int64 `json:"userId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &out))
	require.Equal(t, "user_online", out.Event)
	require.Equal(t, int64(5), out.Data.UserID)
}
