// Package loop models the engine's single-threaded cooperative execution.
//
// All tree mutation and every foreign call happen on one goroutine: the one
// that runs the toolkit's main loop. Re-entrancy comes only from callback
// trampolines invoked by the toolkit during a foreign call, so all queues
// here are plain slices drained on the owner goroutine; a re-entrant caller
// merely appends.
package loop

import (
	"fmt"

	"github.com/petermattis/goid"

	"github.com/go-loom/loom/pkg/errors"
)

// Loop owns the deferred-work queues of the engine and pins them to the
// goroutine that created it.
type Loop struct {
	ownerID int64

	// Strict panics on cross-goroutine use instead of reporting.
	Strict bool

	postCommit []func()
	turns      []*Turn
	draining   bool
}

// New creates a Loop owned by the calling goroutine.
func New() *Loop {
	return &Loop{ownerID: goid.Get()}
}

// Check verifies the caller is the owner goroutine. Off-owner access is a
// programming error; it panics in Strict mode and is reported otherwise.
func (l *Loop) Check(op string) {
	gid := goid.Get()
	if gid == l.ownerID {
		return
	}
	err := &errors.LoomError{
		Op:   op,
		Kind: errors.KindUnknown,
		Err:  fmt.Errorf("called from goroutine %d, owner is %d", gid, l.ownerID),
	}
	if l.Strict {
		panic(err)
	}
	errors.Report(err)
}

// PostCommit schedules fn to run when the current commit finishes.
// Used for deferred signal unblocking: unblocking inside the mutation that
// blocked would let a feedback signal fire before the state settles.
func (l *Loop) PostCommit(fn func()) {
	l.Check("loop.PostCommit")
	l.postCommit = append(l.postCommit, fn)
}

// DrainPostCommit runs every scheduled post-commit function in scheduling
// order. Functions scheduled while draining run in the same drain. Each
// function runs exactly once; a panic in one does not stop the rest.
func (l *Loop) DrainPostCommit() {
	l.Check("loop.DrainPostCommit")
	for len(l.postCommit) > 0 {
		pending := l.postCommit
		l.postCommit = nil
		for _, fn := range pending {
			func() {
				defer errors.Recover("loop.DrainPostCommit")
				fn()
			}()
		}
	}
}

// Turn is a handle to work deferred to the next scheduling turn. Cancel
// before the turn runs withdraws it.
type Turn struct {
	fn       func()
	canceled bool
	done     bool
}

// Cancel withdraws the turn if it has not run yet.
func (t *Turn) Cancel() {
	t.canceled = true
}

// Canceled reports whether Cancel was called before the turn ran.
func (t *Turn) Canceled() bool {
	return t.canceled
}

// NextTurn defers fn to the next scheduling boundary. It is the two-phase
// release primitive: resources that may still be referenced by in-flight
// work are marked now and released when the turn runs.
func (l *Loop) NextTurn(fn func()) *Turn {
	l.Check("loop.NextTurn")
	t := &Turn{fn: fn}
	l.turns = append(l.turns, t)
	return t
}

// DrainTurns runs all currently queued turns in order, skipping canceled
// ones. Turns queued during the drain wait for the next drain, so a turn
// never observes state mutated by a later scheduling cycle.
func (l *Loop) DrainTurns() {
	l.Check("loop.DrainTurns")
	pending := l.turns
	l.turns = nil
	for _, t := range pending {
		if t.canceled || t.done {
			continue
		}
		t.done = true
		func() {
			defer errors.Recover("loop.DrainTurns")
			t.fn()
		}()
	}
}

// PendingTurns reports how many turns are queued, canceled ones included.
func (l *Loop) PendingTurns() int {
	return len(l.turns)
}
