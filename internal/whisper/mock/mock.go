// Package mock provides a scripted in-memory whisper backend for tests.
package mock

import (
	"sync"

	"github.com/obiente/translate/whisperstream/internal/whisper"
)

// Compile-time assertion that Backend satisfies whisper.Backend.
var _ whisper.Backend = (*Backend)(nil)

// Call records one Transcribe invocation.
type Call struct {
	Samples int
	Params  whisper.Params
}

// Backend is a whisper.Backend whose inference results come from Respond.
// All exported fields must be set before the backend is used.
type Backend struct {
	// LoadErr, when non-nil, is returned by every Load call.
	LoadErr error
	// Respond produces the inference result. A nil Respond yields no segments.
	Respond func(samples []float32, p whisper.Params) ([]whisper.Segment, error)
	// Gate, when non-nil, blocks each Transcribe until a value is received.
	Gate chan struct{}

	mu     sync.Mutex
	loads  []whisper.LoadOptions
	calls  []Call
	closed int
}

// Load records opts and returns a context bound to b.
func (b *Backend) Load(weights []byte, opts whisper.LoadOptions) (whisper.Context, error) {
	if len(weights) == 0 {
		return nil, whisper.ErrNoWeights
	}
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	b.mu.Lock()
	b.loads = append(b.loads, opts)
	b.mu.Unlock()
	return &mockContext{b: b}, nil
}

// Loads returns the options of every successful Load, in order.
func (b *Backend) Loads() []whisper.LoadOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]whisper.LoadOptions(nil), b.loads...)
}

// Calls returns every recorded Transcribe call, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Closed returns how many contexts were closed.
func (b *Backend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type mockContext struct {
	b *Backend
}

func (c *mockContext) Transcribe(samples []float32, p whisper.Params) ([]whisper.Segment, error) {
	if c.b.Gate != nil {
		<-c.b.Gate
	}
	c.b.mu.Lock()
	c.b.calls = append(c.b.calls, Call{Samples: len(samples), Params: p})
	c.b.mu.Unlock()
	if c.b.Respond == nil {
		return nil, nil
	}
	return c.b.Respond(samples, p)
}

func (c *mockContext) Close() error {
	c.b.mu.Lock()
	c.b.closed++
	c.b.mu.Unlock()
	return nil
}

// Segment builds a segment whose tokens are spaced stepCs centiseconds apart
// starting at startCs.
func Segment(startCs, stepCs int64, texts ...string) whisper.Segment {
	seg := whisper.Segment{Tokens: make([]whisper.Token, 0, len(texts))}
	t := startCs
	for _, text := range texts {
		seg.Tokens = append(seg.Tokens, whisper.Token{Text: text, Start: t, End: t + stepCs})
		t += stepCs
	}
	return seg
}
