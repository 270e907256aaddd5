// Package vad implements the energy based voice activity check used to decide
// when a chunk of streamed audio can be closed.
package vad

import "math"

// energyFloor is the mean absolute amplitude under which a window is silent.
const energyFloor = 1e-4

// HighPass applies a single-pole high-pass filter to samples in place.
// The first sample is left untouched.
func HighPass(samples []float32, cutoffHz float32, sampleRate int) {
	if len(samples) < 2 || cutoffHz <= 0 || sampleRate <= 0 {
		return
	}
	rc := 1.0 / (2.0 * math.Pi * float64(cutoffHz))
	dt := 1.0 / float64(sampleRate)
	alpha := dt / (rc + dt)

	y := float64(samples[0])
	prev := float64(samples[0])
	for i := 1; i < len(samples); i++ {
		x := float64(samples[i])
		y = alpha * (y + x - prev)
		prev = x
		samples[i] = float32(y)
	}
}

// IsSpeechEnded reports whether the trailing lastMs of window should close the
// current chunk. When freqThold is positive the window is high-pass filtered
// in place first, so callers that need the raw samples must pass a copy.
//
// The decision keeps the whisper.cpp stream example polarity: it returns true
// only when the whole window and its tail are both under the energy floor and
// the tail is not louder than vadThold times the whole window.
func IsSpeechEnded(window []float32, sampleRate, lastMs int, vadThold, freqThold float32) bool {
	n := len(window)
	nLast := sampleRate * lastMs / 1000
	if nLast >= n {
		return false
	}

	if freqThold > 0 {
		HighPass(window, freqThold, sampleRate)
	}

	var energyAll, energyLast float32
	for i, v := range window {
		a := float32(math.Abs(float64(v)))
		energyAll += a
		if i >= n-nLast {
			energyLast += a
		}
	}
	energyAll /= float32(n)
	if nLast != 0 {
		energyLast /= float32(nLast)
	}

	quiet := energyAll < energyFloor && energyLast < energyFloor
	if !quiet || energyLast > vadThold*energyAll {
		return false
	}
	return true
}
