package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/gopxl/beep"
)

// WhisperSampleRate is the sample rate whisper models are trained on.
const WhisperSampleRate = 16000

// resampleQuality is the beep interpolation quality (1-64).
const resampleQuality = 16

// ErrInvalidRate is returned for non-positive sample rates.
var ErrInvalidRate = errors.New("audio: invalid sample rate")

// Downmix folds interleaved multi-channel samples into mono by averaging the
// channels of each frame. Mono input is copied unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return append([]float32(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	if channels == 2 {
		for i := range frames {
			out[i] = (interleaved[2*i] + interleaved[2*i+1]) / 2
		}
		return out
	}
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ExpectedLength returns round(n * dstRate / srcRate).
func ExpectedLength(n, srcRate, dstRate int) int {
	if srcRate <= 0 || dstRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

// Resample converts mono samples from srcRate to dstRate. Equal rates return an
// exact copy. Otherwise at most ExpectedLength samples are generated; callers
// must use len of the result, which may be shorter. On failure the result is
// empty and the error describes the cause.
func Resample(src []float32, srcRate, dstRate int) (out []float32, err error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("%w: %d -> %d", ErrInvalidRate, srcRate, dstRate)
	}
	if srcRate == dstRate {
		return append([]float32(nil), src...), nil
	}
	want := ExpectedLength(len(src), srcRate, dstRate)
	if want == 0 {
		return nil, nil
	}

	// beep reports bad ratios and qualities by panicking.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("audio: resample %d -> %d: %v", srcRate, dstRate, r)
		}
	}()

	pos := 0
	source := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= len(src) {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < len(src) {
			v := float64(src[pos])
			samples[n][0], samples[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})

	r := beep.Resample(resampleQuality, beep.SampleRate(srcRate), beep.SampleRate(dstRate), source)
	out = make([]float32, 0, want)
	chunk := make([][2]float64, 512)
	for len(out) < want {
		n, ok := r.Stream(chunk)
		for i := 0; i < n && len(out) < want; i++ {
			out = append(out, float32(chunk[i][0]))
		}
		if !ok || n == 0 {
			break
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("audio: resample %d -> %d: %w", srcRate, dstRate, err)
	}
	return out, nil
}
