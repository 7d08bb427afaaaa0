// Package signals tracks native event subscriptions. Each node owns one
// Store; the store guarantees at most one live subscription per
// (object, event) pair and releases everything on unmount.
package signals

import (
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/loop"
)

const signalLibrary = ffi.GObjectLibrary

// connectSwapped makes the toolkit pass user data as the first handler
// argument, which is what lets one shared trampoline serve every signal
// arity.
const connectSwapped = 2

// Handler is the Go side of an event subscription. Args describe how the
// signal's native arguments demarshal; a zero Return means void.
type Handler struct {
	Func   ffi.CallbackFunc
	Args   []ffi.Type
	Return ffi.Type
}

type key struct {
	obj   ffi.Handle
	event string
}

type subscription struct {
	obj   ffi.Handle
	event string
	id    uint64
}

// Store tracks the live subscriptions of one node.
type Store struct {
	inv  ffi.Invoker
	loop *loop.Loop
	subs map[key]*subscription
}

// NewStore creates an empty store.
func NewStore(inv ffi.Invoker, l *loop.Loop) *Store {
	return &Store{
		inv:  inv,
		loop: l,
		subs: make(map[key]*subscription),
	}
}

// Len reports the number of live subscriptions.
func (s *Store) Len() int { return len(s.subs) }

// SubscriptionID returns the tracked opaque id for a pair, 0 when absent.
func (s *Store) SubscriptionID(obj ffi.Handle, event string) uint64 {
	if sub, ok := s.subs[key{obj, event}]; ok {
		return sub.id
	}
	return 0
}

// Connect subscribes handler to the object's event. A previous
// subscription for the same pair is disconnected first; two live
// subscriptions for one key must never stack.
func (s *Store) Connect(obj ffi.Handle, event string, h Handler) error {
	if err := s.Disconnect(obj, event); err != nil {
		return err
	}

	out, err := s.inv.Invoke(ffi.Call{
		Library: signalLibrary,
		Symbol:  "g_signal_connect_data",
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: obj},
			{Type: ffi.String(true), Value: event},
			{Type: ffi.Callback(ffi.TrampolineClosure, h.Args, h.Return), Value: h.Func},
			{Type: ffi.CallbackData()},
			{Type: ffi.Boxed("GClosureNotify", true), Value: ffi.DestroyNotify()},
			{Type: ffi.Uint32(), Value: connectSwapped},
		},
		Return: ffi.Uint64(),
	})
	if err != nil {
		return err
	}

	id, _ := out.(uint64)
	s.subs[key{obj, event}] = &subscription{obj: obj, event: event, id: id}
	return nil
}

// Disconnect removes the subscription for a pair. Disconnecting an
// untracked pair is a no-op, not an error.
func (s *Store) Disconnect(obj ffi.Handle, event string) error {
	k := key{obj, event}
	sub, ok := s.subs[k]
	if !ok {
		return nil
	}
	delete(s.subs, k)
	_, err := s.inv.Invoke(ffi.Call{
		Library: signalLibrary,
		Symbol:  "g_signal_handler_disconnect",
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: sub.obj},
			{Type: ffi.Uint64(), Value: sub.id},
		},
		Return: ffi.Void(),
	})
	return err
}

// Set replaces the subscription for a pair: disconnect, then reconnect
// when h is non-nil. This is the property-diff entry point for event keys.
func (s *Store) Set(obj ffi.Handle, event string, h *Handler) error {
	if h == nil {
		return s.Disconnect(obj, event)
	}
	return s.Connect(obj, event, *h)
}

// Clear disconnects every tracked subscription. Cleanup is best-effort: a
// failed disconnect is reported and the rest still run.
func (s *Store) Clear() {
	for k, sub := range s.subs {
		delete(s.subs, k)
		_, err := s.inv.Invoke(ffi.Call{
			Library: signalLibrary,
			Symbol:  "g_signal_handler_disconnect",
			Args: []ffi.Arg{
				{Type: ffi.Object(true), Value: sub.obj},
				{Type: ffi.Uint64(), Value: sub.id},
			},
			Return: ffi.Void(),
		})
		if err != nil {
			errors.Report(&errors.LoomError{Op: "signals.Clear", Kind: errors.KindNative, Err: err})
		}
	}
}

// Block suppresses delivery for every currently tracked subscription, runs
// fn, and schedules unblocking for after the current commit. Unblocking is
// never synchronous inside fn: a programmatic property write in fn may be
// observed by the toolkit before control returns, and an immediate unblock
// would let that feedback signal fire mid-update.
func (s *Store) Block(fn func()) {
	blocked := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if err := s.blockOne(sub); err != nil {
			errors.Report(&errors.LoomError{Op: "signals.Block", Kind: errors.KindNative, Err: err})
			continue
		}
		blocked = append(blocked, sub)
	}

	s.loop.PostCommit(func() {
		for _, sub := range blocked {
			// A subscription disconnected during the commit is gone
			// natively; unblocking it would be an error.
			if current, ok := s.subs[key{sub.obj, sub.event}]; !ok || current.id != sub.id {
				continue
			}
			if err := s.unblockOne(sub); err != nil {
				errors.Report(&errors.LoomError{Op: "signals.Block", Kind: errors.KindNative, Err: err})
			}
		}
	})

	fn()
}

func (s *Store) blockOne(sub *subscription) error {
	_, err := s.inv.Invoke(ffi.Call{
		Library: signalLibrary,
		Symbol:  "g_signal_handler_block",
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: sub.obj},
			{Type: ffi.Uint64(), Value: sub.id},
		},
		Return: ffi.Void(),
	})
	return err
}

func (s *Store) unblockOne(sub *subscription) error {
	_, err := s.inv.Invoke(ffi.Call{
		Library: signalLibrary,
		Symbol:  "g_signal_handler_unblock",
		Args: []ffi.Arg{
			{Type: ffi.Object(true), Value: sub.obj},
			{Type: ffi.Uint64(), Value: sub.id},
		},
		Return: ffi.Void(),
	})
	return err
}
