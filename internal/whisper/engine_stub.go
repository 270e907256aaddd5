//go:build !whisper_cpp

package whisper

import "github.com/rs/zerolog/log"

// Default stub (no cgo) so the project builds without whisper_cpp tag.
type stubBackend struct{}

type stubContext struct{}

// NewBackend returns the stub backend. Build with -tags whisper_cpp for
// real inference.
func NewBackend() Backend { return stubBackend{} }

func (stubBackend) Load(weights []byte, _ LoadOptions) (Context, error) {
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}
	log.Warn().Msg("whisper: built without whisper_cpp tag, transcription disabled")
	return stubContext{}, nil
}

func (stubContext) Transcribe([]float32, Params) ([]Segment, error) { return nil, nil }
func (stubContext) Close() error                                     { return nil }
