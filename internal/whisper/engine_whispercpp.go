//go:build whisper_cpp

package whisper

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

// audioCtx halves the 30 s encoder window to roughly double throughput on
// short chunks.
const audioCtx = 768

type cppBackend struct{}

// cppContext is the whisper.cpp-backed Context.
type cppContext struct {
	model    whisperpkg.Model
	warnedUp bool
}

// NewBackend returns the whisper.cpp backend.
func NewBackend() Backend { return cppBackend{} }

// Load writes the weights to a temporary file, since the Go bindings only
// load models from disk, and initialises a model from it.
func (cppBackend) Load(weights []byte, opts LoadOptions) (Context, error) {
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}
	f, err := os.CreateTemp("", "whisper-model-*.bin")
	if err != nil {
		return nil, fmt.Errorf("whisper: stage weights: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(weights); err != nil {
		f.Close()
		return nil, fmt.Errorf("whisper: stage weights: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("whisper: stage weights: %w", err)
	}

	m, err := whisperpkg.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model: %w", err)
	}
	if !opts.UseGPU {
		log.Warn().Msg("whisper: the bindings do not expose device selection, using the build default")
	}
	log.Info().
		Int("bytes", len(weights)).
		Bool("gpu", opts.UseGPU).
		Bool("multilingual", m.IsMultilingual()).
		Msg("whisper: model loaded successfully")
	return &cppContext{model: m}, nil
}

func (c *cppContext) Close() error {
	if c.model != nil {
		err := c.model.Close()
		c.model = nil
		return err
	}
	return nil
}

// Transcribe runs greedy decoding with token timestamps over samples.
func (c *cppContext) Transcribe(samples []float32, p Params) ([]Segment, error) {
	if c.model == nil {
		return nil, ErrNotLoaded
	}
	if len(samples) == 0 {
		return nil, nil
	}

	ctx, err := c.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}

	lang := p.Language
	if lang == "" {
		lang = "auto"
	}
	if err := ctx.SetLanguage(lang); err != nil {
		log.Warn().Err(err).Str("language", lang).Msg("whisper: failed to set language, using default")
	}
	ctx.SetTranslate(p.Translate)
	if p.Threads > 0 {
		ctx.SetThreads(uint(p.Threads))
	}
	ctx.SetMaxTokensPerSegment(uint(max(p.MaxTokens, 0)))
	ctx.SetMaxSegmentLength(0)
	ctx.SetSplitOnWord(false)
	ctx.SetTokenTimestamps(true)
	ctx.SetAudioCtx(audioCtx)
	ctx.SetTemperature(0)
	if p.EntropyThreshold > 0 {
		ctx.SetEntropyThold(p.EntropyThreshold)
	}
	if p.SpeedUp && !c.warnedUp {
		c.warnedUp = true
		log.Debug().Msg("whisper: speed-up is not supported by this whisper.cpp build, ignoring")
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		log.Error().Err(err).Int("samples", len(samples)).Msg("whisper: process failed")
		return nil, fmt.Errorf("process audio: %w", err)
	}

	var segments []Segment
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read segment: %w", err)
		}
		out := Segment{Tokens: make([]Token, 0, len(seg.Tokens))}
		for _, tok := range seg.Tokens {
			out.Tokens = append(out.Tokens, Token{
				Text:  tok.Text,
				Start: centiseconds(tok.Start),
				End:   centiseconds(tok.End),
			})
		}
		segments = append(segments, out)
	}

	log.Debug().
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Str("lang", ctx.DetectedLanguage()).
		Msg("whisper: transcription complete")
	return segments, nil
}

func centiseconds(d time.Duration) int64 {
	return int64(d / (10 * time.Millisecond))
}
