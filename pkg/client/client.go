// Package client implements the connection flow a chat client runs against
// the relay: dial, nickname negotiation, optional secure channel handshake,
// and a split session for full-duplex use.
package client

import (
	"errors"
	"fmt"
	"net"

	"github.com/bcmpchat/bcmp/pkg/protocol"
	"github.com/bcmpchat/bcmp/pkg/session"
)

// DefaultPort is the well-known relay port.
const DefaultPort = 7878

// ErrRejected carries the server's rejection reason.
type ErrRejected struct {
	Reason string
}

func (e ErrRejected) Error() string {
	return fmt.Sprintf("server refused connection: %s", e.Reason)
}

// Connect dials the relay, negotiates nick and, when the server demands it,
// runs the secure channel handshake. The returned session is ready to be
// split.
func Connect(addr, nick string) (*session.Session, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = fmt.Sprintf("%s:%d", addr, DefaultPort)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	sess := session.New(conn)
	if err := negotiate(sess, nick); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

// negotiate sends the nickname and interprets the server's response.
func negotiate(sess *session.Session, nick string) error {
	if err := sess.Send(protocol.NickChange{Nick: nick}); err != nil {
		return err
	}

	buf := make([]byte, protocol.MaxMessageSize)
	msg, err := sess.Receive(buf)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case protocol.ConnectionAccepted:
		return nil
	case protocol.ConnectionEncrypted:
		return sess.Encrypt()
	case protocol.ConnectionRejected:
		return ErrRejected{Reason: m.Reason}
	default:
		return errors.New("unexpected response to nickname negotiation")
	}
}
