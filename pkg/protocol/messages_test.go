package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Msg
	}{
		{"UserMsg", UserMsg{Text: "hello world"}},
		{"NickChange", NickChange{Nick: "alice"}},
		{"Command", Command{Text: "me waves"}},
		{"NickedConnect", NickedConnect{Nick: "alice"}},
		{"NickedDisconnect", NickedDisconnect{Nick: "alice"}},
		{"NickedUserMsg", NickedUserMsg{Nick: "alice", Text: "hello"}},
		{"NickedNickChange", NickedNickChange{Nick: "alice", NewNick: "bob"}},
		{"NickedCommand", NickedCommand{Nick: "alice", Text: "me waves"}},
		{"ConnectionEncrypted", ConnectionEncrypted{}},
		{"ConnectionAccepted", ConnectionAccepted{}},
		{"ConnectionRejected", ConnectionRejected{Reason: "nick taken"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(tt.msg.Code(), tt.msg.Payload())
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestDecodeEmptyPayloads(t *testing.T) {
	// String-carrying variants accept empty payloads.
	for _, code := range []uint8{CodeUserMsg, CodeNickChange, CodeCommand, CodeConnectionRejected} {
		msg, err := Decode(code, "")
		require.NoError(t, err)
		assert.Equal(t, "", msg.Payload())
	}
}

func TestDecodeUnknownCode(t *testing.T) {
	for _, code := range []uint8{2, 4, 97, 102, 104, 200, 252} {
		_, err := Decode(code, "payload")
		assert.ErrorIs(t, err, ErrInvalidCode, "code %d", code)
	}
}

func TestDecodeNickedMissingNUL(t *testing.T) {
	for _, code := range []uint8{CodeNickedUserMsg, CodeNickedNickChange, CodeNickedCommand} {
		_, err := Decode(code, "no separator here")
		assert.ErrorIs(t, err, ErrInvalidPayload, "code %d", code)
	}
}

func TestCodesAreWireStable(t *testing.T) {
	assert.Equal(t, uint8(0), UserMsg{}.Code())
	assert.Equal(t, uint8(1), NickChange{}.Code())
	assert.Equal(t, uint8(3), Command{}.Code())
	assert.Equal(t, uint8(98), NickedConnect{}.Code())
	assert.Equal(t, uint8(99), NickedDisconnect{}.Code())
	assert.Equal(t, uint8(100), NickedUserMsg{}.Code())
	assert.Equal(t, uint8(101), NickedNickChange{}.Code())
	assert.Equal(t, uint8(103), NickedCommand{}.Code())
	assert.Equal(t, uint8(253), ConnectionEncrypted{}.Code())
	assert.Equal(t, uint8(254), ConnectionAccepted{}.Code())
	assert.Equal(t, uint8(255), ConnectionRejected{}.Code())
}

func TestNickedJoinSplit(t *testing.T) {
	t.Run("symmetric", func(t *testing.T) {
		nick, rest, err := splitNicked(joinNicked("alice", "hello\x00world"))
		require.NoError(t, err)
		assert.Equal(t, "alice", nick)
		assert.Equal(t, "hello\x00world", rest)
	})

	t.Run("empty segments", func(t *testing.T) {
		nick, rest, err := splitNicked(joinNicked("", ""))
		require.NoError(t, err)
		assert.Equal(t, "", nick)
		assert.Equal(t, "", rest)
	})

	t.Run("wire form", func(t *testing.T) {
		assert.Equal(t, "alice\x00hi", NickedUserMsg{Nick: "alice", Text: "hi"}.Payload())
	})
}
