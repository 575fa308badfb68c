package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcmpchat/bcmp/pkg/protocol"
)

// readFrame reads one plaintext frame off the wire with a deadline.
func readFrame(t *testing.T, conn net.Conn) protocol.Msg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, protocol.MaxMessageSize)
	msg, err := protocol.ReadMsg(conn, buf)
	require.NoError(t, err)
	return msg
}

func startRouter(t *testing.T, registry *Registry) *Router {
	t.Helper()
	router := NewRouter(registry, nil)
	go router.Run()
	t.Cleanup(router.Stop)
	return router
}

func TestRouterBroadcastReachesEveryone(t *testing.T) {
	registry := NewRegistry(8)
	router := startRouter(t, registry)

	peers := map[string]net.Conn{}
	for _, nick := range []string{"alice", "bob", "carol"} {
		writer, remote := newWriteHalf(t)
		require.NoError(t, registry.Add(nick, writer))
		peers[nick] = remote
	}

	// The author's own entry is part of the fan-out: everyone, alice
	// included, sees alice's message.
	router.Broadcast(protocol.NickedUserMsg{Nick: "alice", Text: "hi"})

	for nick, remote := range peers {
		msg := readFrame(t, remote)
		assert.Equal(t, protocol.NickedUserMsg{Nick: "alice", Text: "hi"}, msg, "peer %s", nick)
	}
}

func TestRouterPreservesOrder(t *testing.T) {
	registry := NewRegistry(8)
	router := startRouter(t, registry)

	writer, remote := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", writer))

	router.Broadcast(protocol.NickedConnect{Nick: "bob"})
	router.Broadcast(protocol.NickedUserMsg{Nick: "bob", Text: "hello"})
	router.Broadcast(protocol.NickedDisconnect{Nick: "bob"})

	assert.Equal(t, protocol.NickedConnect{Nick: "bob"}, readFrame(t, remote))
	assert.Equal(t, protocol.NickedUserMsg{Nick: "bob", Text: "hello"}, readFrame(t, remote))
	assert.Equal(t, protocol.NickedDisconnect{Nick: "bob"}, readFrame(t, remote))
}

func TestRouterDropsTargetedEnvelopes(t *testing.T) {
	registry := NewRegistry(8)
	router := startRouter(t, registry)

	writer, remote := newWriteHalf(t)
	require.NoError(t, registry.Add("alice", writer))

	// The queue is FIFO: if the broadcast queued after the targeted envelope
	// arrives first, the targeted one was dropped, not delivered.
	target := "alice"
	router.queue <- Envelope{Msg: protocol.UserMsg{Text: "direct"}, To: &target}
	router.Broadcast(protocol.UserMsg{Text: "broadcast"})

	assert.Equal(t, protocol.UserMsg{Text: "broadcast"}, readFrame(t, remote))
}

func TestRouterSurvivesFailedPeer(t *testing.T) {
	registry := NewRegistry(8)
	router := startRouter(t, registry)

	dead, _ := newWriteHalf(t)
	require.NoError(t, dead.Close())
	require.NoError(t, registry.Add("dead", dead))

	live, remote := newWriteHalf(t)
	require.NoError(t, registry.Add("live", live))

	// The failed send to the dead peer must not block delivery to the rest.
	router.Broadcast(protocol.NickedUserMsg{Nick: "live", Text: "still here"})
	assert.Equal(t, protocol.NickedUserMsg{Nick: "live", Text: "still here"}, readFrame(t, remote))
}

func TestBroadcastDoesNotBlockAfterStop(t *testing.T) {
	registry := NewRegistry(8)
	router := NewRouter(registry, nil)
	go router.Run()
	router.Stop()

	// With the consumer gone, senders must discard rather than wait: more
	// broadcasts than the queue can hold all have to return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			router.Broadcast(protocol.NickedDisconnect{Nick: "gone"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
