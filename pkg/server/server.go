package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bcmpchat/bcmp/pkg/protocol"
	"github.com/bcmpchat/bcmp/pkg/session"
)

// debugLog discards by default; EnableDebugLogging swaps in a real logger.
var debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

// EnableDebugLogging routes debug output to standard error.
func EnableDebugLogging() {
	debugLog = log.New(log.Writer(), "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}

// Server is the BCMP relay. It owns the listener, the nickname registry and
// the broadcast router; every accepted connection runs its own goroutine
// through the Connected → Authenticating → (Encrypting) → Active → Closed
// lifecycle.
type Server struct {
	config       Config
	listener     net.Listener
	httpListener net.Listener
	registry     *Registry
	router       *Router
	metrics      *Metrics
	shutdown     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// conns holds every accepted transport, registered under a nickname or
	// not, so Stop can close connections still in nick negotiation or the
	// handshake. There are no read timeouts; without this, Stop would wait
	// forever on a goroutine parked in Receive.
	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
	draining bool
}

// NewServer creates a server instance. metrics may be nil.
func NewServer(config Config, metrics *Metrics) *Server {
	registry := NewRegistry(config.MaxUsers)
	return &Server{
		config:   config,
		registry: registry,
		router:   NewRouter(registry, metrics),
		metrics:  metrics,
		shutdown: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Registry exposes the nickname registry, primarily for tests.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Addr returns the bound TCP listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start binds the TCP listener (and the optional HTTP listener for the
// WebSocket bridge and metrics) and launches the router and accept loops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP server listening on %s", listener.Addr())

	if s.config.RequireEncryption {
		log.Printf("This server only accepts encrypted connections")
	} else {
		log.Printf("This server is operating in unencrypted mode")
	}

	if s.config.HTTPPort > 0 {
		if err := s.startHTTP(); err != nil {
			s.listener.Close()
			return err
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.router.Run()
	}()

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// startHTTP serves the WebSocket bridge and Prometheus metrics.
func (s *Server) startHTTP() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.httpListener = listener
	log.Printf("HTTP server listening on %s (/ws, /metrics)", listener.Addr())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := http.Serve(listener, mux); err != nil {
			select {
			case <-s.shutdown:
			default:
				log.Printf("HTTP serve error: %v", err)
			}
		}
	}()
	return nil
}

// Stop coordinates shutdown: stop accepting, close every accepted transport
// (each connection goroutine then observes an error and tears down through
// the normal Closed path, whether it was mid-negotiation or active), stop
// the router and wait for all goroutines.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpListener != nil {
			s.httpListener.Close()
		}

		s.closeConns()
		s.registry.CloseAll()
		s.router.Stop()
		s.wg.Wait()
	})
}

// acceptLoop accepts incoming connections until shutdown.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		if !s.track(conn) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// track records an accepted transport so Stop can close it even before it
// is registered under a nickname. Connections arriving after shutdown began
// are closed instead of tracked.
func (s *Server) track(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if s.draining {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

// closeConns closes every accepted transport. Each connection goroutine
// observes the close as a read error and exits, letting wg.Wait drain.
func (s *Server) closeConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	s.draining = true
	for conn := range s.conns {
		conn.Close()
	}
}

// handleConnection drives one connection through its lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	sess := session.New(conn)
	defer sess.Close()

	peer := conn.RemoteAddr()
	debugLog.Printf("Incoming connection from %s", peer)
	if s.metrics != nil {
		s.metrics.RecordConnection()
	}

	buf := make([]byte, protocol.MaxMessageSize)

	// Authenticating: the first frame must be a NickChange.
	nick, ok := s.awaitNick(sess, buf, peer)
	if !ok {
		return
	}

	// Capacity and uniqueness are checked in one critical section; a
	// violation is answered with a rejection and the connection never
	// reaches the registry.
	if err := s.registry.Admit(nick); err != nil {
		s.reject(sess, peer, err)
		return
	}

	var accept protocol.Msg = protocol.ConnectionAccepted{}
	if s.config.RequireEncryption {
		accept = protocol.ConnectionEncrypted{}
	}
	if err := sess.Send(accept); err != nil {
		log.Printf("Error accepting %s: %v", peer, err)
		return
	}

	// Encrypting: both sides run the handshake before any further frames.
	if s.config.RequireEncryption {
		if err := sess.Encrypt(); err != nil {
			log.Printf("Handshake with %s failed: %v", peer, err)
			if s.metrics != nil {
				s.metrics.RecordHandshakeFailure()
			}
			return
		}
		if s.metrics != nil {
			s.metrics.RecordHandshake()
		}
		debugLog.Printf("Encrypted stream from %s", peer)
	}

	// Active: split, register the write half, announce the arrival.
	reader, writer := sess.Split()
	if err := s.registry.Add(nick, writer); err != nil {
		s.reject(sess, peer, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordActiveConnections(s.registry.Len())
	}

	log.Printf("Connection successful from %s, nick %s", peer, nick)
	s.router.Broadcast(protocol.NickedConnect{Nick: nick})

	s.readLoop(reader, buf, nick, peer)
}

// awaitNick reads the first frame and extracts the requested nickname. Any
// other first frame, or a transport error, aborts before registration.
func (s *Server) awaitNick(sess *session.Session, buf []byte, peer net.Addr) (string, bool) {
	msg, err := sess.Receive(buf)
	if err != nil {
		log.Printf("%s aborted on nick: %v", peer, err)
		return "", false
	}
	nc, ok := msg.(protocol.NickChange)
	if !ok {
		log.Printf("%s sent code %d before a nick, closing", peer, msg.Code())
		return "", false
	}
	return nc.Nick, true
}

// reject answers a policy violation with ConnectionRejected and lets the
// caller close the connection. A failed send is irrelevant at this point.
func (s *Server) reject(sess *session.Session, peer net.Addr, cause error) {
	reason := cause.Error()
	if err := sess.Send(protocol.ConnectionRejected{Reason: reason}); err != nil {
		debugLog.Printf("Rejection send to %s failed: %v", peer, err)
	}
	log.Printf("Rejected %s: %s", peer, reason)
	if s.metrics != nil {
		s.metrics.RecordRejection(reason)
	}
}

// readLoop relays inbound frames until the transport errors or closes, then
// deregisters the nickname before queueing its disconnect so no message
// attributed to the nick is delivered after its NickedDisconnect.
func (s *Server) readLoop(reader *session.ReadHalf, buf []byte, nick string, peer net.Addr) {
	for {
		msg, err := reader.Receive(buf)
		if err != nil {
			if isClosedErr(err) {
				log.Printf("%s [%s] disconnected", peer, nick)
			} else {
				log.Printf("%s [%s] disconnected: %v", peer, nick, err)
			}
			s.registry.Remove(nick)
			if s.metrics != nil {
				s.metrics.RecordActiveConnections(s.registry.Len())
			}
			s.router.Broadcast(protocol.NickedDisconnect{Nick: nick})
			return
		}

		debugLog.Printf("Msg(%d): [%s]: %s", msg.Code(), nick, msg.Payload())
		switch m := msg.(type) {
		case protocol.UserMsg:
			s.router.Broadcast(protocol.NickedUserMsg{Nick: nick, Text: m.Text})
		case protocol.NickChange:
			s.router.Broadcast(protocol.NickedNickChange{Nick: nick, NewNick: m.Nick})
		case protocol.Command:
			s.router.Broadcast(protocol.NickedCommand{Nick: nick, Text: m.Text})
		default:
			// Other inbound codes are ignored.
		}
	}
}

// isClosedErr reports whether err is the expected error of a deliberately
// closed transport.
func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}
