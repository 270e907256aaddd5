package stream

import (
	"sync"
	"testing"
)

func TestIngestionBuffer_DrainTakesEverything(t *testing.T) {
	var b IngestionBuffer
	b.Push([]float32{1, 2})
	b.Push(nil)
	b.Push([]float32{3})
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	got := b.Drain()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("Drain = %v", got)
	}
	if b.Len() != 0 || len(b.Drain()) != 0 {
		t.Error("buffer not empty after drain")
	}
}

func TestIngestionBuffer_Idle(t *testing.T) {
	var b IngestionBuffer
	if b.isIdle() {
		t.Fatal("idle before the loop marked it")
	}

	b.Push(make([]float32, 3))
	b.markIdle(4)
	if !b.isIdle() {
		t.Fatal("not idle with 3 of 4 samples pending")
	}
	b.Push(nil)
	if !b.isIdle() {
		t.Error("empty push cleared idle")
	}
	b.Push([]float32{1})
	if b.isIdle() {
		t.Error("still idle with 4 samples pending")
	}

	b.markIdle(4)
	if b.isIdle() {
		t.Error("marked idle with enough audio pending")
	}
	b.Drain()
	b.markIdle(4)
	b.Reset()
	if b.isIdle() {
		t.Error("idle survived Reset")
	}
}

func TestIngestionBuffer_ConcurrentPushDrain(t *testing.T) {
	var b IngestionBuffer
	const producers, frames, size = 4, 200, 32

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame := make([]float32, size)
			for range frames {
				b.Push(frame)
			}
		}()
	}

	total := 0
	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				return
			default:
				total += len(b.Drain())
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-drained
	total += len(b.Drain())

	if want := producers * frames * size; total != want {
		t.Errorf("drained %d samples, want %d", total, want)
	}
}

func TestIngestionBuffer_Reset(t *testing.T) {
	var b IngestionBuffer
	b.Push([]float32{1})
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len = %d after Reset", b.Len())
	}
}

func TestOutbox(t *testing.T) {
	var o Outbox
	o.Push(Message{Text: "a", IsPartial: true})
	o.Push(Message{Text: "b"})
	got := o.Drain()
	if len(got) != 2 || got[0].Text != "a" || got[1].IsPartial {
		t.Errorf("Drain = %+v", got)
	}
	if len(o.Drain()) != 0 {
		t.Error("outbox not empty after drain")
	}
}
