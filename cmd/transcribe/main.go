// Command transcribe streams a WAV file through a transcription session in
// fixed-size chunks and prints every message it produces.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/whisperstream/internal/audio"
	"github.com/obiente/translate/whisperstream/internal/stream"
	"github.com/obiente/translate/whisperstream/internal/whisper"
)

const finalTimeout = 30 * time.Second

func main() {
	var (
		modelPath = flag.String("model", "./models/ggml-base.en.bin", "path to a ggml whisper model")
		inPath    = flag.String("in", "", "input WAV file")
		language  = flag.String("language", whisper.AutoLanguage, "spoken language or auto")
		chunkMs   = flag.Int("chunk-ms", 400, "chunk size fed to the session")
		realtime  = flag.Bool("realtime", false, "feed chunks at playback speed")
		useGPU    = flag.Bool("gpu", true, "use the GPU when available")
		verbose   = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: transcribe -model PATH -in FILE.wav [-language auto] [-chunk-ms 400] [-realtime]")
		os.Exit(2)
	}
	if err := run(*modelPath, *inPath, *language, *chunkMs, *realtime, *useGPU); err != nil {
		log.Fatal().Err(err).Msg("transcribe failed")
	}
}

func run(modelPath, inPath, language string, chunkMs int, realtime, useGPU bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	pcm, err := audio.DecodeWAVReader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", inPath, err)
	}
	log.Info().
		Int("rate", pcm.SampleRate).
		Int("channels", pcm.Channels).
		Dur("duration", time.Duration(pcm.Frames())*time.Second/time.Duration(pcm.SampleRate)).
		Msg("input decoded")

	model := whisper.NewModel(whisper.NewBackend())
	if err := model.LoadFile(modelPath, whisper.LoadOptions{UseGPU: useGPU}); err != nil {
		return err
	}
	defer model.Release()

	set := stream.DefaultSettings()
	set.Language = language
	set.UseGPU = useGPU
	if err := set.Validate(); err != nil {
		return err
	}

	sink := stream.NewDispatcher(printEvent)
	sess := stream.NewSession(model, sink, stream.WithLogger(log.Logger), stream.WithSettings(set))
	sess.Start(ctx)

	frames := max(pcm.SampleRate*chunkMs/1000, 1)
	step := frames * pcm.Channels
	for off := 0; off < len(pcm.Samples); off += step {
		end := min(off+step, len(pcm.Samples))
		if err := sess.AddAudio(pcm.Samples[off:end], pcm.Channels, pcm.SampleRate); err != nil {
			break
		}
		if realtime {
			select {
			case <-time.After(time.Duration(chunkMs) * time.Millisecond):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Wait for the loop to force-close the trailing chunk.
	if !waitIdle(ctx, sess, finalTimeout) {
		log.Warn().Msg("session still busy at timeout")
	}
	sess.Stop()
	sink.Close()
	return nil
}

// waitIdle polls until sess has nothing left to emit. It reports false on
// timeout or cancellation.
func waitIdle(ctx context.Context, sess *stream.Session, timeout time.Duration) bool {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(timeout)
	for !sess.Idle() {
		select {
		case <-tick.C:
		case <-deadline:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func printEvent(e stream.Event) {
	for _, m := range e.Messages {
		text := strings.TrimSpace(strings.ReplaceAll(m.Text, stream.SplitMarker, " | "))
		if m.IsPartial {
			fmt.Printf("~ %s\n", text)
			continue
		}
		fmt.Printf("> %s  (%d ms)\n", text, e.ElapsedMs)
	}
}
