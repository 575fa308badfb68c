package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bcmpchat/bcmp/pkg/protocol"
	"github.com/bcmpchat/bcmp/pkg/session"
)

// network owns the split session. The read half feeds the bubbletea loop
// through WaitForMessage; the write half is driven by SendLine commands.
type network struct {
	reader *session.ReadHalf
	writer *session.WriteHalf
	buf    []byte
}

type errMsg error

// inboundMsg wraps a received protocol message for the tea update loop.
type inboundMsg struct {
	msg protocol.Msg
}

func newNetwork(sess *session.Session) *network {
	reader, writer := sess.Split()
	return &network{
		reader: reader,
		writer: writer,
		buf:    make([]byte, protocol.MaxMessageSize),
	}
}

// WaitForMessage is a tea.Cmd that blocks for the next server message.
func (n *network) WaitForMessage() tea.Msg {
	msg, err := n.reader.Receive(n.buf)
	if err != nil {
		return errMsg(err)
	}
	return inboundMsg{msg: msg}
}

// SendLine converts an input line into the corresponding message: "/nick x"
// requests a nickname change, any other slash line is a command, everything
// else is a chat message.
func (n *network) SendLine(line string) tea.Cmd {
	return func() tea.Msg {
		var msg protocol.Msg
		switch {
		case strings.HasPrefix(line, "/nick "):
			msg = protocol.NickChange{Nick: strings.TrimSpace(strings.TrimPrefix(line, "/nick "))}
		case strings.HasPrefix(line, "/"):
			msg = protocol.Command{Text: strings.TrimPrefix(line, "/")}
		default:
			msg = protocol.UserMsg{Text: line}
		}

		if err := n.writer.Send(msg); err != nil {
			return errMsg(err)
		}
		return nil
	}
}

// Close shuts the connection down.
func (n *network) Close() {
	n.writer.Close()
}
