package natsbus

import (
	"testing"

	"github.com/fathima-sithara/roomrent-chat/internal/events"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	req := require.New(t)

	req.Equal("chat.message.read", subject("chat", events.MessageRead))
	req.Equal("message.sent", subject("", events.MessageSent))
}
