package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const presenceTimeout = 3 * time.Second

// Presence is told when a user gains its first or loses its last connection.
type Presence interface {
	SetUserOnline(ctx context.Context, userID string) error
	SetUserOffline(ctx context.Context, userID string) error
}

// presenceQueue applies presence updates off the registry lock while keeping
// them in order per user. At most one writer runs per user, and it always
// finishes on the most recently requested state.
type presenceQueue struct {
	presence Presence

	mu    sync.Mutex
	users map[string]*presenceState
}

type presenceState struct {
	online bool
	dirty  bool
}

func newPresenceQueue(p Presence) *presenceQueue {
	return &presenceQueue{presence: p, users: make(map[string]*presenceState)}
}

// set records the wanted state. Callers hold the registry lock, so requests
// arrive in the same order as the index changes that caused them.
func (q *presenceQueue) set(userID string, online bool) {
	if q.presence == nil {
		return
	}
	q.mu.Lock()
	st, running := q.users[userID]
	if !running {
		st = &presenceState{}
		q.users[userID] = st
	}
	st.online = online
	st.dirty = true
	q.mu.Unlock()

	if !running {
		go q.drain(userID, st)
	}
}

func (q *presenceQueue) drain(userID string, st *presenceState) {
	for {
		q.mu.Lock()
		if !st.dirty {
			delete(q.users, userID)
			q.mu.Unlock()
			return
		}
		online := st.online
		st.dirty = false
		q.mu.Unlock()

		q.apply(userID, online)
	}
}

func (q *presenceQueue) apply(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = q.presence.SetUserOnline(ctx, userID)
	} else {
		err = q.presence.SetUserOffline(ctx, userID)
	}
	if err != nil {
		slog.Warn("Failed to update presence", "userID", userID, "online", online, "error", err)
	}
}
