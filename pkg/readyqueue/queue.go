// Package readyqueue defers camera configuration until the sensor driver
// reports the device open.
//
// Actions submitted while the camera is opening are queued and drained in
// FIFO order when MarkOpened is called. Actions submitted while the camera is
// open, or closed with no open in progress, run immediately on the caller's
// goroutine. A queued action that requires a restart (changing facing) makes
// the drain run a stop action before and a start action after the queued
// actions.
package readyqueue

import (
	"sync"

	"github.com/menta2k/camera-capture/internal/logger"
)

// State is the camera lifecycle as seen by the queue
type State int

const (
	Closed State = iota
	Opening
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Action is a pending camera configuration mutation
type Action struct {
	// Key identifies the setting the action changes. A newer action with the
	// same non-empty key drops the queued one and joins the tail, so the
	// latest value is applied after every setting submitted before it.
	Key string

	// RequiresRestart brackets the drain with stop and start actions
	RequiresRestart bool

	Run func() error
}

type entry struct {
	action Action
	done   []chan struct{}
}

func (e *entry) finish() {
	for _, ch := range e.done {
		close(ch)
	}
}

// Queue is the camera-ready callback queue. The zero value is not usable;
// construct with New.
type Queue struct {
	mu              sync.Mutex
	drainMu         sync.Mutex
	state           State
	pending         []*entry
	requiresRestart bool

	stop  func() error
	start func() error
}

// New creates a closed queue. stop and start are run around a drain when a
// restart is required.
func New(stop, start func() error) *Queue {
	return &Queue{
		state: Closed,
		stop:  stop,
		start: start,
	}
}

// State returns the current lifecycle state
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns the keys of queued actions in drain order
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.pending))
	for _, e := range q.pending {
		keys = append(keys, e.action.Key)
	}
	return keys
}

// RestartRequired reports whether the next drain will be bracketed
func (q *Queue) RestartRequired() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requiresRestart
}

// Submit runs or queues an action. The returned channel is closed once the
// action has run.
func (q *Queue) Submit(a Action) <-chan struct{} {
	done := make(chan struct{})

	q.mu.Lock()
	if q.state == Opening {
		if a.RequiresRestart {
			q.requiresRestart = true
		}
		e := &entry{action: a, done: []chan struct{}{done}}
		coalesced := false
		if a.Key != "" {
			for i, old := range q.pending {
				if old.action.Key == a.Key {
					q.pending = append(q.pending[:i], q.pending[i+1:]...)
					e.done = append(old.done, done)
					coalesced = true
					break
				}
			}
		}
		q.pending = append(q.pending, e)
		q.mu.Unlock()
		msg := "queued until camera opens"
		if coalesced {
			msg = "coalesced pending action"
		}
		logger.WithComponent("readyqueue").Debug().Str("action", a.Key).Msg(msg)
		return done
	}
	q.mu.Unlock()

	run(a)
	close(done)
	return done
}

// MarkOpening records that an open is in progress
func (q *Queue) MarkOpening() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = Opening
}

// MarkClosed records that the camera stopped. Queued actions stay queued
// and run on the next open.
func (q *Queue) MarkClosed() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = Closed
}

// MarkOpened drains the queue and moves to Open. Actions submitted during
// the drain are drained too, so none is lost between batches.
func (q *Queue) MarkOpened() {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = Open
			q.requiresRestart = false
			q.mu.Unlock()
			return
		}
		batch := q.pending
		restart := q.requiresRestart
		q.pending = nil
		q.requiresRestart = false
		q.mu.Unlock()

		log := logger.WithComponent("readyqueue")
		log.Debug().Int("actions", len(batch)).Bool("restart", restart).Msg("draining camera-ready queue")

		if restart && q.stop != nil {
			run(Action{Key: "stop", Run: q.stop})
		}
		for _, e := range batch {
			run(e.action)
			e.finish()
		}
		if restart && q.start != nil {
			run(Action{Key: "start", Run: q.start})
		}
	}
}

func run(a Action) {
	if a.Run == nil {
		return
	}
	if err := a.Run(); err != nil {
		logger.WithComponent("readyqueue").Error().Err(err).Str("action", a.Key).Msg("camera action failed")
	}
}
