package audio

import (
	"errors"
	"math"
	"testing"
)

func TestDownmix_StereoAveragesChannels(t *testing.T) {
	in := []float32{1, 0, 0.5, 0.5, -1, 1, 0.25, -0.75}
	got := Downmix(in, 2)
	want := []float32{0.5, 0.5, 0, -0.25}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoCopies(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	got := Downmix(in, 1)
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	got[0] = 9
	if in[0] != 0.1 {
		t.Error("Downmix must not alias its input")
	}
}

func TestDownmix_MultiChannel(t *testing.T) {
	got := Downmix([]float32{0.3, 0.6, 0.9, 0, 0, 0}, 3)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if math.Abs(float64(got[0])-0.6) > 1e-6 || got[1] != 0 {
		t.Errorf("got %v", got)
	}
}

func TestResample_SameRateIsExactCopy(t *testing.T) {
	in := make([]float32, 1234)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 7))
	}
	got, err := Resample(in, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], in[i])
		}
	}
}

func TestResample_RatioLength(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		src, dst int
	}{
		{"48k to 16k", 4800, 48000, 16000},
		{"44.1k to 16k", 4410, 44100, 16000},
		{"8k to 16k", 800, 8000, 16000},
		{"odd length", 1001, 22050, 16000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.n)
			for i := range in {
				in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(tt.src)))
			}
			got, err := Resample(in, tt.src, tt.dst)
			if err != nil {
				t.Fatalf("Resample: %v", err)
			}
			want := ExpectedLength(tt.n, tt.src, tt.dst)
			if len(got) > want || want-len(got) > 1 {
				t.Errorf("len = %d, want %d (+/-1)", len(got), want)
			}
		})
	}
}

func TestResample_InvalidRate(t *testing.T) {
	got, err := Resample([]float32{1, 2}, 0, 16000)
	if !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("err = %v, want ErrInvalidRate", err)
	}
	if len(got) != 0 {
		t.Errorf("generated %d samples on failure", len(got))
	}
}

func TestResample_Empty(t *testing.T) {
	got, err := Resample(nil, 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
