// Package pipeline carries frames from the capture loop to the presentation
// pump. The handoff is a single-slot mailbox: only the newest frame matters,
// older unread frames are stale and are discarded.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/pixelfold/camcord/internal/core"
)

// LatestFrame is a single-producer, single-consumer, latest-wins mailbox.
//
// Send never blocks: an unconsumed frame is overwritten and counted as a
// drop. TryReceive never blocks: an empty slot is not an error, the consumer
// simply keeps whatever it displayed last.
type LatestFrame struct {
	mu    sync.Mutex
	frame *core.Frame
	drops uint64
}

// NewLatestFrame creates an empty mailbox.
func NewLatestFrame() *LatestFrame {
	return &LatestFrame{}
}

// Send places a frame in the slot, superseding any unconsumed frame.
func (l *LatestFrame) Send(frame *core.Frame) {
	l.mu.Lock()
	if l.frame != nil {
		// Previous frame was never consumed; newest wins.
		atomic.AddUint64(&l.drops, 1)
	}
	l.frame = frame
	l.mu.Unlock()
}

// TryReceive takes the pending frame, if any. It never blocks.
func (l *LatestFrame) TryReceive() (*core.Frame, bool) {
	l.mu.Lock()
	frame := l.frame
	l.frame = nil
	l.mu.Unlock()

	if frame == nil {
		return nil, false
	}
	return frame, true
}

// Drops returns how many frames were superseded before being consumed.
// Drops are expected whenever the consumer ticks slower than the producer.
func (l *LatestFrame) Drops() uint64 {
	return atomic.LoadUint64(&l.drops)
}
