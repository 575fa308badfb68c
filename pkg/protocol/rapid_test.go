package protocol

import (
	"bytes"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// nulFree generates strings without embedded NUL bytes, the precondition of
// the nicked join/split property.
func nulFree(t *rapid.T, label string) string {
	return rapid.String().
		Filter(func(s string) bool { return !strings.Contains(s, "\x00") }).
		Draw(t, label)
}

// TestNickedJoinSplitProperty checks split(join(a, b)) == (a, b) for any
// NUL-free nickname and arbitrary payload.
func TestNickedJoinSplitProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nick := nulFree(t, "nick")
		payload := rapid.String().Draw(t, "payload")

		gotNick, gotPayload, err := splitNicked(joinNicked(nick, payload))
		if err != nil {
			t.Fatalf("split failed: %v", err)
		}
		if gotNick != nick || gotPayload != payload {
			t.Fatalf("mismatch: got (%q, %q), want (%q, %q)", gotNick, gotPayload, nick, payload)
		}
	})
}

// TestMsgFrameRoundTrip encodes any message through the frame codec and
// back.
func TestMsgFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Payloads bounded so the joined frame stays within MaxMessageSize.
		short := func(label string) string {
			return rapid.StringOfN(rapid.Rune(), 0, 200, -1).
				Filter(func(s string) bool { return !strings.Contains(s, "\x00") }).
				Draw(t, label)
		}

		var original Msg
		switch rapid.IntRange(0, 10).Draw(t, "variant") {
		case 0:
			original = UserMsg{Text: short("text")}
		case 1:
			original = NickChange{Nick: short("nick")}
		case 2:
			original = Command{Text: short("text")}
		case 3:
			original = NickedConnect{Nick: short("nick")}
		case 4:
			original = NickedDisconnect{Nick: short("nick")}
		case 5:
			original = NickedUserMsg{Nick: short("nick"), Text: short("text")}
		case 6:
			original = NickedNickChange{Nick: short("nick"), NewNick: short("new")}
		case 7:
			original = NickedCommand{Nick: short("nick"), Text: short("text")}
		case 8:
			original = ConnectionEncrypted{}
		case 9:
			original = ConnectionAccepted{}
		case 10:
			original = ConnectionRejected{Reason: short("reason")}
		}

		frame, err := EncodeMsg(original)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		buf := make([]byte, MaxMessageSize)
		decoded, err := ReadMsg(bytes.NewReader(frame), buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded != original {
			t.Fatalf("round-trip mismatch: got %#v, want %#v", decoded, original)
		}
	})
}
