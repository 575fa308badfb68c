// Package session wraps one duplex transport in BCMP framing, with an
// optional per-connection cipher installed by the secure channel handshake.
package session

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/bcmpchat/bcmp/pkg/protocol"
	"github.com/bcmpchat/bcmp/pkg/secure"
)

// envelopeHeaderSize is the 2-byte little-endian ciphertext length prefix of
// an encrypted envelope.
const envelopeHeaderSize = 2

// maxCiphertextSize bounds the declared ciphertext length of an inbound
// envelope: a maximum-size plaintext frame plus the AEAD tag.
const maxCiphertextSize = protocol.MaxMessageSize + secure.Overhead

// Session is one chat connection. Before the handshake the cipher is absent
// and frames travel plaintext; afterwards every frame is sealed into a
// ciphertext_length || nonce || ciphertext envelope.
type Session struct {
	conn   net.Conn
	cipher *secure.Cipher
	wmu    sync.Mutex
}

// New wraps an accepted or dialed connection in a plaintext session.
func New(conn net.Conn) *Session {
	return &Session{conn: conn}
}

// Encrypt runs the secure channel handshake on the underlying transport and
// installs the derived cipher. Calling Encrypt on an already-encrypted
// session is a no-op; there is no re-keying. Encrypt must complete before
// Split is called, and before any concurrent Send/Receive.
func (s *Session) Encrypt() error {
	if s.cipher != nil {
		return nil
	}
	cipher, err := secure.Handshake(s.conn)
	if err != nil {
		return err
	}
	s.cipher = cipher
	return nil
}

// Encrypted reports whether the session carries an installed cipher.
func (s *Session) Encrypted() bool {
	return s.cipher != nil
}

// Send encodes and writes one message, sealed when a cipher is installed.
func (s *Session) Send(m protocol.Msg) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return sendMsg(s.conn, s.cipher, m)
}

// Receive blocks until a full frame is available and returns the decoded
// message. buf is scratch space of at least protocol.MaxMessageSize bytes.
func (s *Session) Receive(buf []byte) (protocol.Msg, error) {
	return receiveMsg(s.conn, s.cipher, buf)
}

// Split produces independent read and write halves over the same transport.
// The cipher state is captured (copied) at split time: a handshake performed
// after Split does not affect the halves. The two directions of the
// underlying duplex socket are genuinely independent, so one goroutine may
// block in Receive while another Sends.
func (s *Session) Split() (*ReadHalf, *WriteHalf) {
	return &ReadHalf{conn: s.conn, cipher: s.cipher},
		&WriteHalf{conn: s.conn, cipher: s.cipher}
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.conn.Close()
}

// RemoteAddr returns the transport's peer address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// ReadHalf is the receive side of a split session.
type ReadHalf struct {
	conn   net.Conn
	cipher *secure.Cipher
}

// Receive blocks until the next full frame arrives.
func (r *ReadHalf) Receive(buf []byte) (protocol.Msg, error) {
	return receiveMsg(r.conn, r.cipher, buf)
}

// WriteHalf is the send side of a split session. Concurrent senders are
// serialized so frames never interleave on the wire.
type WriteHalf struct {
	conn   net.Conn
	cipher *secure.Cipher
	mu     sync.Mutex
}

// Send encodes and writes one message.
func (w *WriteHalf) Send(m protocol.Msg) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sendMsg(w.conn, w.cipher, m)
}

// Close closes the underlying transport, which also unblocks the peer
// ReadHalf with an error.
func (w *WriteHalf) Close() error {
	return w.conn.Close()
}

// RemoteAddr returns the transport's peer address.
func (w *WriteHalf) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}

func sendMsg(w io.Writer, cipher *secure.Cipher, m protocol.Msg) error {
	frame, err := protocol.EncodeMsg(m)
	if err != nil {
		return err
	}

	if cipher == nil {
		_, err = w.Write(frame)
		return err
	}

	nonce, ciphertext, err := cipher.Seal(frame)
	if err != nil {
		return err
	}
	if len(ciphertext) > maxCiphertextSize {
		return protocol.ErrMessageTooLarge
	}

	// One write per frame: length prefix, nonce and ciphertext together.
	envelope := make([]byte, 0, envelopeHeaderSize+secure.NonceSize+len(ciphertext))
	envelope = binary.LittleEndian.AppendUint16(envelope, uint16(len(ciphertext)))
	envelope = append(envelope, nonce...)
	envelope = append(envelope, ciphertext...)
	_, err = w.Write(envelope)
	return err
}

func receiveMsg(r io.Reader, cipher *secure.Cipher, buf []byte) (protocol.Msg, error) {
	if cipher == nil {
		return protocol.ReadMsg(r, buf)
	}

	var header [envelopeHeaderSize + secure.NonceSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := int(binary.LittleEndian.Uint16(header[:2]))
	if length > maxCiphertextSize {
		return nil, protocol.ErrMessageTooLarge
	}
	nonce := header[2:]

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, err
	}

	frame, err := cipher.Open(nonce, ciphertext)
	if err != nil {
		return nil, err
	}
	return protocol.ReadMsg(bytes.NewReader(frame), buf)
}
