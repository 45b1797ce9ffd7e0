// Package services – reply scheduler
//
// This file implements Replies, the scheduler for delayed bot replies. Each
// reply is a one-shot timer registered under its session. Pending timers of a
// session can be canceled as a group (clear, new user) and every timer is
// stopped on shutdown. A session is "typing" while it has pending replies.
package services

import (
	"sync"
	"time"
)

// timer is the subset of *time.Timer the scheduler needs.
type timer interface {
	Stop() bool
}

// Replies schedules and tracks delayed bot replies per session. It is safe
// for concurrent use.
type Replies struct {
	mu      sync.Mutex
	pending map[string]map[uint64]timer
	nextID  uint64
	stopped bool

	// OnIdle, when set, is called after a fired reply leaves its session with
	// no pending replies.
	OnIdle func(sessionID string)

	afterFunc func(d time.Duration, f func()) timer
}

// NewReplies returns an empty scheduler backed by time.AfterFunc.
func NewReplies() *Replies {
	return &Replies{
		pending: make(map[string]map[uint64]timer),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Schedule runs fn after delay unless the session's replies are canceled or
// the scheduler is stopped first. It reports false when the scheduler has
// already been stopped.
func (r *Replies) Schedule(sessionID string, delay time.Duration, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.nextID++
	id := r.nextID
	set := r.pending[sessionID]
	if set == nil {
		set = make(map[uint64]timer)
		r.pending[sessionID] = set
	}
	set[id] = r.afterFunc(delay, func() {
		fn()
		r.done(sessionID, id)
	})
	return true
}

// done unregisters a fired reply and reports idleness.
func (r *Replies) done(sessionID string, id uint64) {
	r.mu.Lock()
	set := r.pending[sessionID]
	if _, ok := set[id]; !ok {
		// Canceled while firing.
		r.mu.Unlock()
		return
	}
	delete(set, id)
	idle := len(set) == 0
	if idle {
		delete(r.pending, sessionID)
	}
	onIdle := r.OnIdle
	r.mu.Unlock()

	if idle && onIdle != nil {
		onIdle(sessionID)
	}
}

// Pending returns the number of replies waiting to fire for the session.
func (r *Replies) Pending(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[sessionID])
}

// Cancel stops every pending reply of the session and returns how many were
// registered. A reply already firing cannot be stopped; callers guard
// against it with the session generation.
func (r *Replies) Cancel(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.pending[sessionID]
	for _, t := range set {
		t.Stop()
	}
	delete(r.pending, sessionID)
	return len(set)
}

// Stop cancels all pending replies and rejects further scheduling.
func (r *Replies) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for sid, set := range r.pending {
		for _, t := range set {
			t.Stop()
		}
		delete(r.pending, sid)
	}
}
