package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/obiente/translate/whisperstream/internal/audio"
	"github.com/obiente/translate/whisperstream/internal/observe"
	"github.com/obiente/translate/whisperstream/internal/vad"
	"github.com/obiente/translate/whisperstream/internal/whisper"
)

const whisperSampleRate = audio.WhisperSampleRate

// ErrNotListening is returned by AddAudio when the session is stopped.
var ErrNotListening = errors.New("stream: session is not listening")

// Session is one listening session: an ingestion buffer fed by a producer and
// a background loop that owns the working window and the model calls.
// Sessions share no mutable state with each other.
type Session struct {
	id      string
	model   *whisper.Model
	sink    Sink
	log     zerolog.Logger
	metrics *observe.Metrics
	timing  Timing

	buf    IngestionBuffer
	outbox Outbox

	settingsMu sync.RWMutex
	settings   Settings

	lifecycleMu sync.Mutex
	running     atomic.Bool
	stop        chan struct{}
	done        chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. A "session" field is added.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTiming overrides the segmentation constants.
func WithTiming(t Timing) Option {
	return func(s *Session) { s.timing = t }
}

// WithSettings sets the initial runtime settings.
func WithSettings(set Settings) Option {
	return func(s *Session) { s.settings = set }
}

// WithID sets the session id. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession creates a stopped session transcribing with model and
// delivering events to sink.
func NewSession(model *whisper.Model, sink Sink, opts ...Option) *Session {
	s := &Session{
		model:    model,
		sink:     sink,
		log:      zerolog.Nop(),
		timing:   DefaultTiming(),
		settings: DefaultSettings(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.log = s.log.With().Str("session", s.id).Logger()
	if err := s.timing.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("invalid timing, using defaults")
		s.timing = DefaultTiming()
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Listening reports whether the loop is running.
func (s *Session) Listening() bool { return s.running.Load() }

// Idle reports whether the loop has emitted everything it can from the audio
// received so far: its window is empty and less than the minimum pending
// audio is buffered. It turns false once enough audio is added.
func (s *Session) Idle() bool { return s.buf.isIdle() }

// Settings returns a snapshot of the runtime settings.
func (s *Session) Settings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the runtime settings. Toggling UseGPU reloads a
// loaded model, which waits for an in-flight inference to finish. An unloaded
// model keeps its options until it is next loaded.
func (s *Session) UpdateSettings(set Settings) error {
	if err := set.Validate(); err != nil {
		return fmt.Errorf("stream: invalid settings: %w", err)
	}
	s.settingsMu.Lock()
	prev := s.settings
	s.settings = set
	s.settingsMu.Unlock()

	if prev.UseGPU == set.UseGPU {
		return nil
	}
	if !s.model.Loaded() {
		s.log.Warn().Bool("gpu", set.UseGPU).Msg("model not loaded, gpu setting not applied")
		return nil
	}
	s.log.Info().Bool("gpu", set.UseGPU).Msg("reloading model")
	if err := s.model.Reload(whisper.LoadOptions{UseGPU: set.UseGPU}); err != nil {
		return fmt.Errorf("stream: reload model: %w", err)
	}
	return nil
}

// Start launches the background loop. It is a no-op while already running.
// The loop ends on Stop or when ctx is cancelled.
func (s *Session) Start(ctx context.Context) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.running.Load() {
		return
	}
	s.buf.Reset()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running.Store(true)
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info().Msg("listening started")
	go s.run(ctx, s.stop, s.done)
}

// Stop asks the loop to exit and waits for it. An inference in progress is
// completed first; its result is still emitted.
func (s *Session) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.stop == nil {
		return
	}
	s.running.Store(false)
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	s.log.Info().Msg("listening stopped")
}

// AddAudio ingests interleaved float frames recorded at sampleRate. Frames
// are downmixed to mono and resampled to 16 kHz. Frames that fail to
// resample or that a zero-tail VAD check classifies as silence are dropped.
func (s *Session) AddAudio(interleaved []float32, channels, sampleRate int) error {
	if !s.running.Load() {
		return ErrNotListening
	}
	mono := audio.Downmix(interleaved, channels)
	data, err := audio.Resample(mono, sampleRate, s.timing.SampleRate)
	if err != nil {
		s.log.Warn().Err(err).Int("frames", len(mono)).Msg("resample failed, dropping frame")
		s.metrics.RecordDroppedFrame(context.Background(), "resample")
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	set := s.Settings()
	frame := append([]float32(nil), data...)
	if vad.IsSpeechEnded(frame, s.timing.SampleRate, 0, set.VADThreshold, set.FreqThreshold) {
		s.metrics.RecordDroppedFrame(context.Background(), "silence")
		return nil
	}
	s.buf.Push(data)
	return nil
}

func (s *Session) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	defer s.running.Store(false)

	var (
		t          = s.timing
		minPending = t.samples(t.MinPendingMs)
		threshold  = t.iterationThreshold()
		window     []float32
		emptyIters int
		lastFinal  = time.Now()
	)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		needClose := false
		if s.buf.Len() < minPending {
			emptyIters++
			if emptyIters >= t.EmptyIterLimit && len(window) > 0 {
				needClose = true
				emptyIters = 0
			} else {
				emptyIters %= t.EmptyIterLimit
				if len(window) == 0 {
					s.buf.markIdle(minPending)
				}
				if !s.sleep(ctx, stop, t.Backoff) {
					return
				}
				continue
			}
		} else {
			emptyIters = 0
		}

		pending := s.buf.Drain()
		if len(pending) > 2*threshold {
			s.log.Warn().
				Int("pending", len(pending)).
				Int("threshold", threshold).
				Msg("too much audio pending, results may lag behind real time")
			s.metrics.Overloads.Add(ctx, 1)
		}
		window = append(window, pending...)

		var final bool
		window, final = s.iterate(ctx, window, needClose)
		if final {
			s.log.Debug().Dur("since_last", time.Since(lastFinal)).Int("kept", len(window)).Msg("chunk finalized")
			lastFinal = time.Now()
		}
	}
}

// sleep waits for d and reports false when the loop should exit instead.
func (s *Session) sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// iterate runs one inference over window and emits the resulting message.
// It returns the window to carry into the next iteration and whether the
// chunk was finalized.
func (s *Session) iterate(ctx context.Context, window []float32, needClose bool) ([]float32, bool) {
	t := s.timing
	set := s.Settings()
	started := time.Now()

	spanCtx, span := observe.StartSpan(ctx, "stream.transcribe",
		trace.WithAttributes(attribute.Int("samples", len(window))))
	segments, err := s.model.Transcribe(window, set.params())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		if errors.Is(err, whisper.ErrNotLoaded) {
			s.log.Error().Msg("model not loaded, skipping iteration")
			s.metrics.RecordInferenceError(spanCtx, "not_loaded")
		} else {
			s.log.Error().Err(err).Int("samples", len(window)).Msg("failed to process audio")
			s.metrics.RecordInferenceError(spanCtx, "failed")
		}
		return window, false
	}
	span.End()
	s.metrics.Iterations.Add(ctx, 1)

	speechEnded := false
	if n := t.samples(t.VADWindowMs); len(window) >= n {
		tail := append([]float32(nil), window[len(window)-n:]...)
		speechEnded = vad.IsSpeechEnded(tail, t.SampleRate, t.VADLastMs, set.VADThreshold, set.FreqThreshold)
		if speechEnded {
			s.log.Debug().Msg("speech end detected")
		}
	}
	silent := false
	if needClose {
		whole := append([]float32(nil), window...)
		silent = vad.IsSpeechEnded(whole, t.SampleRate, 0, set.VADThreshold, set.FreqThreshold)
		speechEnded = true
	}

	rec := Reconcile(segments, speechEnded)
	msg := Message{Text: StripSpecialTokens(rec.Text)}
	if silent {
		msg.Text = ""
	}

	final := float64(len(window)) > float64(t.iterationThreshold())*t.FinalizeFraction || speechEnded
	if final {
		window = truncateWindow(window, rec.Cut, speechEnded, t.SampleRate)
	} else {
		msg.IsPartial = true
	}

	elapsed := time.Since(started)
	s.metrics.InferenceDuration.Record(ctx, elapsed.Seconds())
	s.metrics.RecordMessage(ctx, msg.IsPartial)

	s.outbox.Push(msg)
	s.sink.Emit(Event{
		SessionID: s.id,
		ElapsedMs: elapsed.Milliseconds(),
		Messages:  s.outbox.Drain(),
	})
	return window, final
}
