package stream

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/obiente/translate/whisperstream/internal/whisper"
)

// Settings are the runtime tunables of a session. They are read at the start
// of every iteration, so updates apply to the next inference.
type Settings struct {
	Language         string  `yaml:"language" json:"language"`
	Translate        bool    `yaml:"translate" json:"translate"`
	UseGPU           bool    `yaml:"use_gpu" json:"use_gpu"`
	EntropyThreshold float32 `yaml:"entropy_threshold" json:"entropy_threshold"`
	VADThreshold     float32 `yaml:"vad_threshold" json:"vad_threshold"`
	FreqThreshold    float32 `yaml:"freq_threshold" json:"freq_threshold"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens"`
	Threads          int     `yaml:"threads" json:"threads"`
	SpeedUp          bool    `yaml:"speed_up" json:"speed_up"`
}

// DefaultSettings mirror the whisper.cpp stream example.
func DefaultSettings() Settings {
	return Settings{
		Language:         whisper.AutoLanguage,
		UseGPU:           true,
		EntropyThreshold: 2.4,
		VADThreshold:     0.6,
		FreqThreshold:    100,
		MaxTokens:        32,
		Threads:          min(4, runtime.NumCPU()),
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if !whisper.ValidLanguage(s.Language) {
		errs = append(errs, fmt.Errorf("unknown language %q", s.Language))
	}
	if s.EntropyThreshold < 0 {
		errs = append(errs, fmt.Errorf("entropy_threshold must be >= 0, got %v", s.EntropyThreshold))
	}
	if s.VADThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad_threshold must be >= 0, got %v", s.VADThreshold))
	}
	if s.FreqThreshold < 0 {
		errs = append(errs, fmt.Errorf("freq_threshold must be >= 0, got %v", s.FreqThreshold))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be >= 0, got %d", s.MaxTokens))
	}
	if s.Threads < 0 {
		errs = append(errs, fmt.Errorf("threads must be >= 0, got %d", s.Threads))
	}
	return errors.Join(errs...)
}

func (s Settings) params() whisper.Params {
	return whisper.Params{
		Language:         s.Language,
		Translate:        s.Translate,
		Threads:          s.Threads,
		MaxTokens:        s.MaxTokens,
		EntropyThreshold: s.EntropyThreshold,
		SpeedUp:          s.SpeedUp,
	}
}

// Timing holds the segmentation constants. The defaults allow arbitrary
// input cadence with no tuning: an iteration runs once a second of audio is
// pending, and a chunk is force-closed at about two thirds of 14 s.
type Timing struct {
	SampleRate       int           `yaml:"sample_rate"`
	TriggerMs        int           `yaml:"trigger_ms"`
	IterationFactor  int           `yaml:"iteration_factor"` // iteration threshold = TriggerMs * IterationFactor
	MinPendingMs     int           `yaml:"min_pending_ms"`
	EmptyIterLimit   int           `yaml:"empty_iter_limit"`
	Backoff          time.Duration `yaml:"backoff"`
	VADWindowMs      int           `yaml:"vad_window_ms"`
	VADLastMs        int           `yaml:"vad_last_ms"`
	FinalizeFraction float64       `yaml:"finalize_fraction"`
}

// DefaultTiming returns the stock segmentation constants.
func DefaultTiming() Timing {
	return Timing{
		SampleRate:       whisperSampleRate,
		TriggerMs:        400,
		IterationFactor:  35,
		MinPendingMs:     1000,
		EmptyIterLimit:   20,
		Backoff:          50 * time.Millisecond,
		VADWindowMs:      3000,
		VADLastMs:        500,
		FinalizeFraction: 0.66,
	}
}

// Validate reports every invalid field.
func (t Timing) Validate() error {
	var errs []error
	if t.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be > 0, got %d", t.SampleRate))
	}
	if t.TriggerMs <= 0 || t.IterationFactor <= 0 {
		errs = append(errs, errors.New("trigger_ms and iteration_factor must be > 0"))
	}
	if t.MinPendingMs <= 0 {
		errs = append(errs, fmt.Errorf("min_pending_ms must be > 0, got %d", t.MinPendingMs))
	}
	if t.EmptyIterLimit <= 0 {
		errs = append(errs, fmt.Errorf("empty_iter_limit must be > 0, got %d", t.EmptyIterLimit))
	}
	if t.Backoff <= 0 {
		errs = append(errs, fmt.Errorf("backoff must be > 0, got %s", t.Backoff))
	}
	if t.VADWindowMs <= 0 || t.VADLastMs < 0 || t.VADLastMs >= t.VADWindowMs {
		errs = append(errs, errors.New("vad_last_ms must be within [0, vad_window_ms)"))
	}
	if t.FinalizeFraction <= 0 || t.FinalizeFraction > 1 {
		errs = append(errs, fmt.Errorf("finalize_fraction must be in (0, 1], got %v", t.FinalizeFraction))
	}
	return errors.Join(errs...)
}

func (t Timing) samples(ms int) int {
	return t.SampleRate * ms / 1000
}

// iterationThreshold is the window size, in samples, that forces a chunk
// to close once FinalizeFraction of it has accumulated.
func (t Timing) iterationThreshold() int {
	return t.samples(t.TriggerMs * t.IterationFactor)
}
