package stream

import "sync"

// IngestionBuffer accumulates producer samples until the loop drains them.
// The lock is held only for the append or drain itself.
type IngestionBuffer struct {
	mu      sync.Mutex
	samples []float32

	// idle is set by the loop when its window is empty and less than
	// idleBelow samples are pending. Push clears it once idleBelow is reached.
	idle      bool
	idleBelow int
}

// Push appends frame. The frame must not be modified afterwards.
func (b *IngestionBuffer) Push(frame []float32) {
	if len(frame) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, frame...)
	if b.idle && len(b.samples) >= b.idleBelow {
		b.idle = false
	}
	b.mu.Unlock()
}

// Len returns the number of pending samples.
func (b *IngestionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Drain removes and returns all pending samples.
func (b *IngestionBuffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.samples
	b.samples = nil
	return out
}

// Reset discards all pending samples.
func (b *IngestionBuffer) Reset() {
	b.mu.Lock()
	b.samples = nil
	b.idle = false
	b.mu.Unlock()
}

// markIdle records that the loop has nothing to work on unless at least
// minPending samples are pending. The check and the flag share the lock
// with Push, so a concurrent Push cannot be missed.
func (b *IngestionBuffer) markIdle(minPending int) {
	b.mu.Lock()
	b.idleBelow = minPending
	b.idle = len(b.samples) < minPending
	b.mu.Unlock()
}

func (b *IngestionBuffer) isIdle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idle
}

// Outbox queues messages between the loop and the sink.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
}

// Push appends m.
func (o *Outbox) Push(m Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, m)
	o.mu.Unlock()
}

// Drain removes and returns all queued messages.
func (o *Outbox) Drain() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.msgs
	o.msgs = nil
	return out
}
