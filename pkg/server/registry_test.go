package server

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcmpchat/bcmp/pkg/session"
)

func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err = net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	server = <-accepted

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// newWriteHalf returns a registrable write half and the peer conn that
// receives whatever is sent through it.
func newWriteHalf(t *testing.T) (*session.WriteHalf, net.Conn) {
	t.Helper()
	local, remote := tcpPair(t)
	_, writer := session.New(local).Split()
	return writer, remote
}

func TestRegistryAdmitCapacity(t *testing.T) {
	registry := NewRegistry(2)

	for i := 0; i < 2; i++ {
		writer, _ := newWriteHalf(t)
		require.NoError(t, registry.Add(fmt.Sprintf("user%d", i), writer))
	}

	assert.ErrorIs(t, registry.Admit("latecomer"), ErrTooManyUsers)
	assert.Equal(t, "too many users", registry.Admit("latecomer").Error())
}

func TestRegistryAdmitDuplicateNick(t *testing.T) {
	registry := NewRegistry(8)

	writer, _ := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", writer))

	assert.ErrorIs(t, registry.Admit("alice"), ErrNickTaken)
	assert.Equal(t, "nick taken", registry.Admit("alice").Error())
	assert.NoError(t, registry.Admit("bob"))
}

func TestRegistryAddRechecksAfterAdmit(t *testing.T) {
	registry := NewRegistry(8)

	// Both pass admission before either inserts; the second insert must lose.
	require.NoError(t, registry.Admit("alice"))
	require.NoError(t, registry.Admit("alice"))

	first, _ := newWriteHalf(t)
	second, _ := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", first))
	assert.ErrorIs(t, registry.Add("alice", second), ErrNickTaken)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryRemove(t *testing.T) {
	registry := NewRegistry(8)

	writer, _ := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", writer))

	assert.True(t, registry.Remove("alice"))
	assert.False(t, registry.Remove("alice"))
	assert.Equal(t, 0, registry.Len())

	// The freed nick is admissible again.
	assert.NoError(t, registry.Admit("alice"))
}

func TestRegistryEach(t *testing.T) {
	registry := NewRegistry(8)
	for _, nick := range []string{"alice", "bob"} {
		writer, _ := newWriteHalf(t)
		require.NoError(t, registry.Add(nick, writer))
	}

	seen := map[string]bool{}
	registry.Each(func(nick string, w *session.WriteHalf) {
		seen[nick] = w != nil
	})
	assert.Equal(t, map[string]bool{"alice": true, "bob": true}, seen)
}

func TestRegistryCloseAll(t *testing.T) {
	registry := NewRegistry(8)

	writer, remote := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", writer))

	registry.CloseAll()
	assert.Equal(t, 0, registry.Len())

	// The peer observes the close as end of stream.
	_, err := remote.Read(make([]byte, 1))
	assert.Error(t, err)
}
