package server

import (
	"errors"
	"sync"

	"github.com/bcmpchat/bcmp/pkg/session"
)

var (
	ErrTooManyUsers = errors.New("too many users")
	ErrNickTaken    = errors.New("nick taken")
)

// Registry maps each active nickname to the outbound half of its session.
// All reads and writes go through one mutex; critical sections stay short
// and panic-free so the accept path never blocks on unrelated connections.
type Registry struct {
	mu       sync.Mutex
	users    map[string]*session.WriteHalf
	maxUsers int
}

// NewRegistry creates a registry with the given capacity.
func NewRegistry(maxUsers int) *Registry {
	return &Registry{
		users:    make(map[string]*session.WriteHalf, maxUsers),
		maxUsers: maxUsers,
	}
}

// Admit checks, in a single critical section, that the registry has room
// and that nick is free. It does not insert; insertion happens in Add once
// the connection reaches its active state.
func (r *Registry) Admit(nick string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.users) >= r.maxUsers {
		return ErrTooManyUsers
	}
	if _, taken := r.users[nick]; taken {
		return ErrNickTaken
	}
	return nil
}

// Add registers the write half under nick. The duplicate check is repeated
// here because admission and insertion are separated by the handshake; the
// loser of a same-nick race is rejected rather than overwriting the winner.
func (r *Registry) Add(nick string, w *session.WriteHalf) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.users) >= r.maxUsers {
		return ErrTooManyUsers
	}
	if _, taken := r.users[nick]; taken {
		return ErrNickTaken
	}
	r.users[nick] = w
	return nil
}

// Remove deregisters nick. It reports whether the nick was present.
func (r *Registry) Remove(nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.users[nick]
	delete(r.users, nick)
	return ok
}

// Each calls fn for every registered entry while holding the lock. fn must
// not call back into the registry.
func (r *Registry) Each(fn func(nick string, w *session.WriteHalf)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for nick, w := range r.users {
		fn(nick, w)
	}
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// CloseAll forcibly closes every registered transport and empties the
// registry. Each connection's read loop observes the close as a read error
// and tears itself down through the normal path.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for nick, w := range r.users {
		w.Close()
		delete(r.users, nick)
	}
}
