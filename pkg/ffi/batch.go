package ffi

// Batcher is a nestable stack of pending-call queues. While a batch is
// open, void-returning calls are queued and flushed together, amortizing
// boundary-crossing cost during bulk tree mutations. Batches nest LIFO: an
// inner batch flushes before the outer batch's remaining queued calls, so
// program order is preserved as if unbatched.
//
// The stack, not a flag pair, is what keeps re-entrant trampoline
// invocations safe: a callback that opens its own batch closes it without
// disturbing the scope it interrupted.
type Batcher struct {
	queues [][]Call
}

// NewBatcher creates an idle batcher.
func NewBatcher() *Batcher {
	return &Batcher{}
}

// Active reports whether any batch scope is open.
func (b *Batcher) Active() bool {
	return len(b.queues) > 0
}

// Depth reports the current nesting depth.
func (b *Batcher) Depth() int {
	return len(b.queues)
}

// Begin pushes a new empty queue.
func (b *Batcher) Begin() {
	b.queues = append(b.queues, nil)
}

// enqueue appends a call to the innermost queue. Caller must check Active.
func (b *Batcher) enqueue(call Call) {
	top := len(b.queues) - 1
	b.queues[top] = append(b.queues[top], call)
}

// End pops the innermost queue and returns it for flushing, in enqueue
// order. Ending with no open batch returns nil.
func (b *Batcher) End() []Call {
	if len(b.queues) == 0 {
		return nil
	}
	top := len(b.queues) - 1
	queue := b.queues[top]
	b.queues = b.queues[:top]
	return queue
}
