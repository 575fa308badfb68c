package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Message codes (Client → Server)
const (
	CodeUserMsg    = 0
	CodeNickChange = 1
	CodeCommand    = 3
)

// Message codes (Server → Client). The "nicked" codes carry the originating
// nickname joined to the original payload with a single NUL byte.
const (
	CodeNickedConnect    = 98
	CodeNickedDisconnect = 99
	CodeNickedUserMsg    = 100
	CodeNickedNickChange = 101
	CodeNickedCommand    = 103

	CodeConnectionEncrypted = 253
	CodeConnectionAccepted  = 254
	CodeConnectionRejected  = 255
)

var (
	ErrInvalidCode    = errors.New("unknown message code")
	ErrInvalidPayload = errors.New("malformed message payload")
)

// Msg is one BCMP message. The set of implementations is closed: every
// variant maps to exactly one wire code and vice versa.
type Msg interface {
	// Code returns the wire code of the message. Codes are wire-stable and
	// must never be reassigned.
	Code() uint8
	// Payload returns the canonical string encoding of the message body,
	// including the NUL join for nicked variants.
	Payload() string
}

// UserMsg (0) - a chat line from a client
type UserMsg struct {
	Text string
}

func (m UserMsg) Code() uint8     { return CodeUserMsg }
func (m UserMsg) Payload() string { return m.Text }

// NickChange (1) - nickname request; also the mandatory first frame of a
// connection
type NickChange struct {
	Nick string
}

func (m NickChange) Code() uint8     { return CodeNickChange }
func (m NickChange) Payload() string { return m.Nick }

// Command (3) - a slash-command from a client
type Command struct {
	Text string
}

func (m Command) Code() uint8     { return CodeCommand }
func (m Command) Payload() string { return m.Text }

// NickedConnect (98) - server notice that a user joined
type NickedConnect struct {
	Nick string
}

func (m NickedConnect) Code() uint8     { return CodeNickedConnect }
func (m NickedConnect) Payload() string { return m.Nick }

// NickedDisconnect (99) - server notice that a user left
type NickedDisconnect struct {
	Nick string
}

func (m NickedDisconnect) Code() uint8     { return CodeNickedDisconnect }
func (m NickedDisconnect) Payload() string { return m.Nick }

// NickedUserMsg (100) - a relayed chat line tagged with its author
type NickedUserMsg struct {
	Nick string
	Text string
}

func (m NickedUserMsg) Code() uint8     { return CodeNickedUserMsg }
func (m NickedUserMsg) Payload() string { return joinNicked(m.Nick, m.Text) }

// NickedNickChange (101) - a relayed nickname change tagged with the old
// nickname
type NickedNickChange struct {
	Nick    string
	NewNick string
}

func (m NickedNickChange) Code() uint8     { return CodeNickedNickChange }
func (m NickedNickChange) Payload() string { return joinNicked(m.Nick, m.NewNick) }

// NickedCommand (103) - a relayed command tagged with its author
type NickedCommand struct {
	Nick string
	Text string
}

func (m NickedCommand) Code() uint8     { return CodeNickedCommand }
func (m NickedCommand) Payload() string { return joinNicked(m.Nick, m.Text) }

// ConnectionEncrypted (253) - accept response demanding a secure-channel
// handshake before any further frames
type ConnectionEncrypted struct{}

func (m ConnectionEncrypted) Code() uint8     { return CodeConnectionEncrypted }
func (m ConnectionEncrypted) Payload() string { return "" }

// ConnectionAccepted (254) - plaintext accept response
type ConnectionAccepted struct{}

func (m ConnectionAccepted) Code() uint8     { return CodeConnectionAccepted }
func (m ConnectionAccepted) Payload() string { return "" }

// ConnectionRejected (255) - rejection with a human-readable reason
type ConnectionRejected struct {
	Reason string
}

func (m ConnectionRejected) Code() uint8     { return CodeConnectionRejected }
func (m ConnectionRejected) Payload() string { return m.Reason }

// Decode constructs a Msg from a wire code and its payload string. Unknown
// codes fail with ErrInvalidCode; nicked payloads lacking the NUL separator
// fail with ErrInvalidPayload.
func Decode(code uint8, payload string) (Msg, error) {
	switch code {
	case CodeUserMsg:
		return UserMsg{Text: payload}, nil
	case CodeNickChange:
		return NickChange{Nick: payload}, nil
	case CodeCommand:
		return Command{Text: payload}, nil
	case CodeNickedConnect:
		return NickedConnect{Nick: payload}, nil
	case CodeNickedDisconnect:
		return NickedDisconnect{Nick: payload}, nil
	case CodeNickedUserMsg:
		nick, text, err := splitNicked(payload)
		if err != nil {
			return nil, err
		}
		return NickedUserMsg{Nick: nick, Text: text}, nil
	case CodeNickedNickChange:
		nick, newNick, err := splitNicked(payload)
		if err != nil {
			return nil, err
		}
		return NickedNickChange{Nick: nick, NewNick: newNick}, nil
	case CodeNickedCommand:
		nick, text, err := splitNicked(payload)
		if err != nil {
			return nil, err
		}
		return NickedCommand{Nick: nick, Text: text}, nil
	case CodeConnectionEncrypted:
		return ConnectionEncrypted{}, nil
	case CodeConnectionAccepted:
		return ConnectionAccepted{}, nil
	case CodeConnectionRejected:
		return ConnectionRejected{Reason: payload}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}
}

// joinNicked encodes a nickname and payload as a single NUL-separated
// string. The nickname must not contain NUL; splitNicked(joinNicked(a, b))
// returns (a, b) for any NUL-free a.
func joinNicked(nick, payload string) string {
	return nick + "\x00" + payload
}

// splitNicked splits a nicked payload at its first NUL byte.
func splitNicked(payload string) (nick, rest string, err error) {
	nick, rest, ok := strings.Cut(payload, "\x00")
	if !ok {
		return "", "", fmt.Errorf("%w: nicked payload missing NUL separator", ErrInvalidPayload)
	}
	return nick, rest, nil
}
