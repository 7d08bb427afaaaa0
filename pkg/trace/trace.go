// Package trace records executed foreign calls in a bounded ring buffer
// for diagnostics. Recording is sampled at the call boundary, so the
// buffer shows the exact native traffic of recent commits, batched and
// immediate alike.
package trace

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/go-loom/loom/pkg/ffi"
)

const defaultCapacity = 512

// Sample is one recorded foreign call.
type Sample struct {
	Timestamp int64  `msgpack:"ts"`
	Library   string `msgpack:"lib"`
	Symbol    string `msgpack:"sym"`
	ArgCount  int    `msgpack:"argc"`
	Return    string `msgpack:"ret"`
	Batched   bool   `msgpack:"batched"`
}

// Timeline is the dump shape: chronological samples plus buffer stats.
type Timeline struct {
	Samples  []Sample `msgpack:"samples"`
	Dropped  int      `msgpack:"dropped"`
	Capacity int      `msgpack:"capacity"`
}

// Buffer stores recent call samples in a fixed-size ring. It implements
// the engine's tracing hook and is safe for use from inspector readers
// on other goroutines.
type Buffer struct {
	mu      sync.RWMutex
	samples []Sample
	index   int
	count   int
	dropped int
}

// NewBuffer creates a ring buffer holding up to capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Buffer{samples: make([]Sample, capacity)}
}

// Record stores one executed call, evicting the oldest when full.
func (b *Buffer) Record(call ffi.Call, batched bool) {
	sample := Sample{
		Timestamp: time.Now().UnixMicro(),
		Library:   call.Library,
		Symbol:    call.Symbol,
		ArgCount:  len(call.Args),
		Return:    call.Return.String(),
		Batched:   batched,
	}
	b.mu.Lock()
	if b.count == len(b.samples) {
		b.dropped++
	}
	b.samples[b.index] = sample
	b.index = (b.index + 1) % len(b.samples)
	if b.count < len(b.samples) {
		b.count++
	}
	b.mu.Unlock()
}

// Capacity returns the buffer size.
func (b *Buffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Len returns the number of stored samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Snapshot returns a chronological copy of the stored samples.
func (b *Buffer) Snapshot() Timeline {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Sample, b.count)
	if b.count < len(b.samples) {
		copy(result, b.samples[:b.count])
	} else {
		copy(result, b.samples[b.index:])
		copy(result[len(b.samples)-b.index:], b.samples[:b.index])
	}
	return Timeline{
		Samples:  result,
		Dropped:  b.dropped,
		Capacity: len(b.samples),
	}
}

// Dump serializes the current timeline.
func (b *Buffer) Dump() ([]byte, error) {
	return msgpack.Marshal(b.Snapshot())
}

// Decode parses a dumped timeline, for tooling on the receiving end.
func Decode(data []byte) (Timeline, error) {
	var tl Timeline
	err := msgpack.Unmarshal(data, &tl)
	return tl, err
}
