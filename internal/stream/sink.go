package stream

import "sync"

// Message is one transcription update. A partial message may be revised by
// a later one; text before SplitMarker in a partial message is stable.
type Message struct {
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

// Event is a batch of messages produced by one loop iteration.
type Event struct {
	SessionID string    `json:"-"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Messages  []Message `json:"messages"`
}

// Sink receives events from the loop. Emit must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink. The function runs on the loop
// goroutine, so it must return quickly.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Dispatcher is a Sink that delivers events in order on its own goroutine.
// Emit only queues, so a slow handler never stalls the producer of events.
type Dispatcher struct {
	handler func(Event)

	mu     sync.Mutex
	queue  []Event
	closed bool

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher that calls handler for every event.
func NewDispatcher(handler func(Event)) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Emit queues e for delivery. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(e Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close delivers the events already queued and stops the dispatcher.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.quit)
	})
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.wake:
			d.flush()
		case <-d.quit:
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, e := range batch {
			d.handler(e)
		}
	}
}
