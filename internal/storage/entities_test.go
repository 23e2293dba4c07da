package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChatParticipants(t *testing.T) {
	c := Chat{ID: 1, Participants: [2]int64{3, 7}}

	require.True(t, c.HasParticipant(3))
	require.True(t, c.HasParticipant(7))
	require.False(t, c.HasParticipant(5))

	peer, ok := c.OtherParticipant(3)
	require.True(t, ok)
	require.Equal(t, int64(7), peer)

	peer, ok = c.OtherParticipant(7)
	require.True(t, ok)
	require.Equal(t, int64(3), peer)

	_, ok = c.OtherParticipant(5)
	require.False(t, ok)
}
