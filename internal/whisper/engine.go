package whisper

import (
	"errors"
	"strings"
)

// Backend loads model weights into an inference context.
// Implementations may be a no-op (stub) or backed by whisper.cpp (build tag: whisper_cpp).
type Backend interface {
	// Load initialises a context from raw ggml model weights.
	Load(weights []byte, opts LoadOptions) (Context, error)
}

// Context is a loaded model. It is not safe for concurrent use; Model
// serialises access to it.
type Context interface {
	// Transcribe runs a blocking batch inference over mono 16 kHz samples.
	Transcribe(samples []float32, p Params) ([]Segment, error)
	Close() error
}

// LoadOptions are the settings that require a model reload when changed.
type LoadOptions struct {
	UseGPU bool
}

// Params configures a single inference call.
type Params struct {
	Language         string // ISO 639-1 code or "auto"
	Translate        bool   // translate to English
	Threads          int
	MaxTokens        int // max tokens per segment, 0 = unlimited
	EntropyThreshold float32
	SpeedUp          bool
}

// Segment is one decoded segment with its tokens in order.
type Segment struct {
	Tokens []Token
}

// Text concatenates the token texts of s.
func (s Segment) Text() string {
	var b strings.Builder
	for _, t := range s.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Token is a decoded token. Start and End are centiseconds relative to the
// start of the transcribed samples.
type Token struct {
	Text  string
	Start int64
	End   int64
}

var (
	// ErrNotLoaded is returned by Model.Transcribe before a model is loaded.
	ErrNotLoaded = errors.New("whisper: model not loaded")
	// ErrNoWeights is returned when loading empty weights or reloading
	// without previously loaded weights.
	ErrNoWeights = errors.New("whisper: no model weights")
)
