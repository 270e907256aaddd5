package vad

import (
	"math"
	"testing"
)

func sine(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func TestIsSpeechEnded_InsufficientWindow(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		lastMs int
		vad    float32
		freq   float32
	}{
		{"tail equals window", 8000, 500, 0.6, 100},
		{"tail longer than window", 100, 500, 0.6, 0},
		{"empty window zero tail", 0, 0, 0.6, 100},
		{"zero thresholds", 1600, 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := make([]float32, tt.n)
			if IsSpeechEnded(w, 16000, tt.lastMs, tt.vad, tt.freq) {
				t.Error("IsSpeechEnded = true, want false for insufficient data")
			}
		})
	}
}

func TestIsSpeechEnded_ZeroEnergy(t *testing.T) {
	w := make([]float32, 48000)
	if !IsSpeechEnded(w, 16000, 500, 0.6, 100) {
		t.Error("all-zero window should report speech ended")
	}
	if !IsSpeechEnded(make([]float32, 1600), 16000, 0, 0.6, 100) {
		t.Error("all-zero window with zero tail should report speech ended")
	}
}

func TestIsSpeechEnded_LoudWindow(t *testing.T) {
	w := sine(48000, 0.5)
	if IsSpeechEnded(w, 16000, 500, 0.6, 100) {
		t.Error("loud window should not report speech ended")
	}
	if IsSpeechEnded(sine(1600, 0.5), 16000, 0, 0.6, 0) {
		t.Error("loud frame should pass the zero-tail pre-filter")
	}
}

func TestIsSpeechEnded_QuietTailLouderThanRatio(t *testing.T) {
	// Both energies under the floor, but the tail is louder than
	// vadThold * energyAll, which keeps the chunk open.
	w := make([]float32, 16000)
	for i := 15200; i < len(w); i++ {
		w[i] = 5e-5
	}
	if IsSpeechEnded(w, 16000, 50, 0.6, 0) {
		t.Error("tail above ratio should not report speech ended")
	}
}

func TestIsSpeechEnded_FiltersInPlace(t *testing.T) {
	w := make([]float32, 1600)
	for i := range w {
		w[i] = 0.5
	}
	IsSpeechEnded(w, 16000, 100, 0.6, 100)
	if w[0] != 0.5 {
		t.Errorf("first sample changed: %v", w[0])
	}
	if w[len(w)-1] >= 0.5 {
		t.Errorf("window not filtered: last = %v", w[len(w)-1])
	}
}

func TestHighPass_DecaysDC(t *testing.T) {
	w := make([]float32, 4000)
	for i := range w {
		w[i] = 1
	}
	HighPass(w, 100, 16000)
	if w[0] != 1 {
		t.Fatalf("first sample = %v, want 1", w[0])
	}
	if w[1] >= w[0] {
		t.Fatalf("second sample = %v, want below %v", w[1], w[0])
	}
	for i := 2; i < len(w); i++ {
		if w[i] > w[i-1] {
			t.Fatalf("sample %d = %v grew from %v", i, w[i], w[i-1])
		}
	}
	if w[len(w)-1] > 1e-3 {
		t.Errorf("last sample = %v, want near zero", w[len(w)-1])
	}
}

func TestHighPass_NoopWithoutCutoff(t *testing.T) {
	w := []float32{1, 1, 1}
	HighPass(w, 0, 16000)
	for i, v := range w {
		if v != 1 {
			t.Errorf("sample %d = %v, want 1", i, v)
		}
	}
}
