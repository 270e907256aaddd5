package whisper

import (
	"fmt"
	"os"
	"sync"
)

// Model owns at most one loaded Context. Loading, reloading, releasing and
// inference are serialised by one mutex, so a reload waits for an in-flight
// Transcribe to return before replacing the context.
type Model struct {
	backend Backend

	mu      sync.Mutex
	weights []byte
	opts    LoadOptions
	ctx     Context
}

// NewModel returns an empty model using backend for loading.
func NewModel(backend Backend) *Model {
	return &Model{backend: backend}
}

// Load initialises a context from weights, replacing any loaded one.
func (m *Model) Load(weights []byte, opts LoadOptions) error {
	if len(weights) == 0 {
		return ErrNoWeights
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.swap(weights, opts); err != nil {
		return err
	}
	m.weights = weights
	return nil
}

// LoadFile reads model weights from path and loads them.
func (m *Model) LoadFile(path string, opts LoadOptions) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("whisper: read model %q: %w", path, err)
	}
	return m.Load(b, opts)
}

// Reload re-initialises the context from the retained weights with opts.
func (m *Model) Reload(opts LoadOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.weights) == 0 {
		return ErrNoWeights
	}
	return m.swap(m.weights, opts)
}

// swap frees the current context and loads a new one. m.mu must be held.
// On failure the model is left unloaded.
func (m *Model) swap(weights []byte, opts LoadOptions) error {
	if m.ctx != nil {
		_ = m.ctx.Close()
		m.ctx = nil
	}
	ctx, err := m.backend.Load(weights, opts)
	if err != nil {
		return err
	}
	m.ctx = ctx
	m.opts = opts
	return nil
}

// Release frees the loaded context and forgets the weights.
func (m *Model) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = nil
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Close()
	m.ctx = nil
	return err
}

// Loaded reports whether a context is available.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx != nil
}

// Options returns the options the current context was loaded with.
func (m *Model) Options() LoadOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Transcribe runs inference on the loaded context. It blocks for the full
// duration of the call and returns ErrNotLoaded when no context is loaded.
func (m *Model) Transcribe(samples []float32, p Params) ([]Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil, ErrNotLoaded
	}
	return m.ctx.Transcribe(samples, p)
}
