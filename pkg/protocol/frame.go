package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessageSize is the maximum total frame size (header + payload)
	// allowed on the wire. Both peers must agree on it; it is never
	// negotiated.
	MaxMessageSize = 2048

	// HeaderSize is the fixed frame header: code (1 byte) + payload length
	// (2 bytes, little-endian).
	HeaderSize = 3
)

var ErrMessageTooLarge = errors.New("message exceeds maximum frame size")

// EncodeMsg encodes a message into a full wire frame:
// code || length(payload) LE16 || payload.
func EncodeMsg(m Msg) ([]byte, error) {
	payload := m.Payload()
	if HeaderSize+len(payload) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = m.Code()
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WriteMsg encodes a message and writes the frame to w in a single write.
func WriteMsg(w io.Writer, m Msg) error {
	frame, err := EncodeMsg(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMsg reads one frame from r using buf as scratch space. buf must be at
// least MaxMessageSize bytes. The declared payload length is validated
// against MaxMessageSize before any payload byte is read; an oversized
// declaration fails without consuming the payload. The payload is decoded
// as UTF-8, replacing invalid sequences rather than failing.
//
// ReadMsg is agnostic to where the bytes come from: r may be a raw
// transport or an already-decrypted plaintext buffer.
func ReadMsg(r io.Reader, buf []byte) (Msg, error) {
	if _, err := io.ReadFull(r, buf[:HeaderSize]); err != nil {
		return nil, err
	}

	code := buf[0]
	length := int(binary.LittleEndian.Uint16(buf[1:3]))
	if HeaderSize+length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	if _, err := io.ReadFull(r, buf[HeaderSize:HeaderSize+length]); err != nil {
		return nil, err
	}

	payload := lossyString(buf[HeaderSize : HeaderSize+length])
	return Decode(code, payload)
}

// lossyString decodes b as UTF-8, substituting U+FFFD for invalid sequences.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
