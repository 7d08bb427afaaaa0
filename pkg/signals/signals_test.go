package signals

import (
	"testing"

	"github.com/go-loom/loom/pkg/ffi"
	"github.com/go-loom/loom/pkg/ffi/ffitest"
	"github.com/go-loom/loom/pkg/loop"
)

func newStore(t *testing.T) (*Store, *ffitest.Recorder, *loop.Loop) {
	t.Helper()
	r := ffitest.New()
	l := loop.New()
	return NewStore(r, l), r, l
}

func noop(args []any) any { return nil }

func TestConnect_TracksSubscriptionID(t *testing.T) {
	s, r, _ := newStore(t)
	r.Returns["g_signal_connect_data"] = uint64(41)

	if err := s.Connect(ffi.Handle(1), "clicked", Handler{Func: noop}); err != nil {
		t.Fatal(err)
	}
	if got := s.SubscriptionID(ffi.Handle(1), "clicked"); got != 41 {
		t.Errorf("subscription id = %d, want 41", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestConnect_SamePairDisconnectsOldFirst(t *testing.T) {
	s, r, _ := newStore(t)

	s.Connect(ffi.Handle(1), "clicked", Handler{Func: noop})
	s.Connect(ffi.Handle(1), "clicked", Handler{Func: noop})

	if s.Len() != 1 {
		t.Fatalf("Len = %d, want exactly one live subscription", s.Len())
	}
	if got := len(r.CallsTo("g_signal_handler_disconnect")); got != 1 {
		t.Errorf("disconnects = %d, want 1 (old subscription released first)", got)
	}
	if got := len(r.CallsTo("g_signal_connect_data")); got != 2 {
		t.Errorf("connects = %d, want 2", got)
	}
}

func TestDisconnect_UntrackedPairIsNoOp(t *testing.T) {
	s, r, _ := newStore(t)
	if err := s.Disconnect(ffi.Handle(1), "clicked"); err != nil {
		t.Fatalf("disconnect of untracked pair errored: %v", err)
	}
	if len(r.Calls) != 0 {
		t.Error("no native call should be issued for an untracked pair")
	}
}

func TestSet_NilHandlerDisconnects(t *testing.T) {
	s, _, _ := newStore(t)
	s.Connect(ffi.Handle(1), "toggled", Handler{Func: noop})
	s.Set(ffi.Handle(1), "toggled", nil)
	if s.Len() != 0 {
		t.Error("Set(nil) should disconnect")
	}
}

func TestClear_DisconnectsEverythingDespiteFailures(t *testing.T) {
	s, r, _ := newStore(t)
	s.Connect(ffi.Handle(1), "clicked", Handler{Func: noop})
	s.Connect(ffi.Handle(2), "toggled", Handler{Func: noop})
	r.Reset()

	failed := false
	r.Handlers["g_signal_handler_disconnect"] = func(call ffi.Call) (any, error) {
		if !failed {
			failed = true
			return nil, &stubErr{}
		}
		return nil, nil
	}

	s.Clear()
	if s.Len() != 0 {
		t.Error("Clear must release all subscriptions even when one disconnect fails")
	}
	if got := len(r.CallsTo("g_signal_handler_disconnect")); got != 2 {
		t.Errorf("disconnect attempts = %d, want 2", got)
	}
}

type stubErr struct{}

func (*stubErr) Error() string { return "stub failure" }

func TestBlock_DefersUnblockUntilPostCommit(t *testing.T) {
	s, r, l := newStore(t)
	s.Connect(ffi.Handle(1), "state-set", Handler{Func: noop})
	r.Reset()

	s.Block(func() {
		if got := len(r.CallsTo("g_signal_handler_unblock")); got != 0 {
			t.Errorf("unblock ran inside fn: %d calls", got)
		}
	})

	if got := len(r.CallsTo("g_signal_handler_block")); got != 1 {
		t.Fatalf("block calls = %d, want 1", got)
	}
	if got := len(r.CallsTo("g_signal_handler_unblock")); got != 0 {
		t.Fatalf("unblock must wait for the commit to finish, got %d calls", got)
	}

	l.DrainPostCommit()
	if got := len(r.CallsTo("g_signal_handler_unblock")); got != 1 {
		t.Errorf("unblock after drain = %d, want 1", got)
	}
}

func TestBlock_SkipsUnblockForSubscriptionDisconnectedMidCommit(t *testing.T) {
	s, r, l := newStore(t)
	s.Connect(ffi.Handle(1), "state-set", Handler{Func: noop})
	r.Reset()

	s.Block(func() {
		s.Disconnect(ffi.Handle(1), "state-set")
	})
	l.DrainPostCommit()

	if got := len(r.CallsTo("g_signal_handler_unblock")); got != 0 {
		t.Errorf("unblock of a disconnected subscription = %d calls, want 0", got)
	}
}

func TestBlock_UnblocksInScheduledOrder(t *testing.T) {
	s, r, l := newStore(t)
	s.Connect(ffi.Handle(1), "changed", Handler{Func: noop})
	r.Reset()

	s.Block(func() {})
	s.Block(func() {})
	l.DrainPostCommit()

	if got := len(r.CallsTo("g_signal_handler_unblock")); got != 2 {
		t.Errorf("unblock calls = %d, want 2 (one per block)", got)
	}
}
