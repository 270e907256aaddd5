package stream

import (
	"testing"

	"github.com/obiente/translate/whisperstream/internal/whisper"
	"github.com/obiente/translate/whisperstream/internal/whisper/mock"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		segments    []whisper.Segment
		speechEnded bool
		wantText    string
		wantCut     int64
	}{
		{
			name:     "empty",
			wantText: "",
		},
		{
			name:     "no punctuation",
			segments: []whisper.Segment{mock.Segment(0, 50, " hello", " world")},
			wantText: " hello world",
		},
		{
			name:        "no punctuation speech ended",
			segments:    []whisper.Segment{mock.Segment(0, 50, " hello", " world")},
			speechEnded: true,
			wantText:    " hello world",
		},
		{
			name:     "cut after midpoint",
			segments: []whisper.Segment{mock.Segment(0, 50, " hello", " there", ".", " how", " are")},
			wantText: " hello there.{SPLIT} how are",
			wantCut:  150,
		},
		{
			name:        "cut after midpoint speech ended",
			segments:    []whisper.Segment{mock.Segment(0, 50, " hello", " there", ".", " how", " are")},
			speechEnded: true,
			wantText:    " hello there. how are",
			wantCut:     150,
		},
		{
			name:     "fallback settled by later candidate",
			segments: []whisper.Segment{mock.Segment(0, 50, " hi", ",", " so", " well", ".", " ok")},
			wantText: " hi,{SPLIT} so well. ok",
			wantCut:  100,
		},
		{
			name:        "fallback settled speech ended",
			segments:    []whisper.Segment{mock.Segment(0, 50, " hi", ",", " so", " well", ".", " ok")},
			speechEnded: true,
			wantText:    " hi, so well. ok",
			wantCut:     100,
		},
		{
			name:     "fallback only",
			segments: []whisper.Segment{mock.Segment(0, 50, " hi", ",", " so", " well", " ok", " then")},
			wantText: " hi,{SPLIT} so well ok then",
			wantCut:  100,
		},
		{
			name:        "fallback only marks even after speech end",
			segments:    []whisper.Segment{mock.Segment(0, 50, " hi", ",", " so", " well", " ok", " then")},
			speechEnded: true,
			wantText:    " hi,{SPLIT} so well ok then",
			wantCut:     100,
		},
		{
			name:     "latest fallback wins",
			segments: []whisper.Segment{mock.Segment(0, 50, " a", ",", " b", ",", " c", " d", " e", " f", " g", " h")},
			wantText: " a, b,{SPLIT} c d e f g h",
			wantCut:  200,
		},
		{
			name: "timestamp token is a cut candidate",
			segments: []whisper.Segment{{Tokens: []whisper.Token{
				{Text: "[_BEG_]", Start: 0, End: 0},
				{Text: " hi", Start: 0, End: 100},
				{Text: " there", Start: 100, End: 200},
				{Text: "[_TT_200]", Start: 200, End: 200},
			}}},
			wantText: "[_BEG_] hi there[_TT_200]{SPLIT}",
			wantCut:  200,
		},
		{
			name: "midpoint from last segment",
			segments: []whisper.Segment{
				mock.Segment(0, 100, " one", "."),
				mock.Segment(200, 100, " two", " three"),
			},
			wantText: " one.{SPLIT} two three",
			wantCut:  200,
		},
		{
			name:     "full width punctuation",
			segments: []whisper.Segment{mock.Segment(0, 50, "你好", "，", "世界", "。")},
			wantText: "你好，{SPLIT}世界。",
			wantCut:  100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.segments, tt.speechEnded)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Cut != tt.wantCut {
				t.Errorf("Cut = %d, want %d", got.Cut, tt.wantCut)
			}
		})
	}
}

func TestReconcile_SegmentWithoutTokens(t *testing.T) {
	got := Reconcile([]whisper.Segment{mock.Segment(0, 50, " hi", "."), {}}, false)
	// The midpoint is zero, so the first candidate settles the cut.
	if got.Text != " hi.{SPLIT}" || got.Cut != 100 {
		t.Errorf("got %+v", got)
	}
}

func TestStripSpecialTokens(t *testing.T) {
	in := "[_BEG_] hi there[_TT_200]{SPLIT} more[_TT_350]"
	want := " hi there{SPLIT} more"
	if got := StripSpecialTokens(in); got != want {
		t.Errorf("StripSpecialTokens = %q, want %q", got, want)
	}
}

func TestTruncateWindow(t *testing.T) {
	window := make([]float32, 32000)
	for i := range window {
		window[i] = float32(i)
	}

	got := truncateWindow(window, 50, false, 16000)
	if len(got) != 24000 {
		t.Fatalf("len = %d, want 24000", len(got))
	}
	if got[0] != 8000 {
		t.Errorf("first kept sample = %v, want sample 8000", got[0])
	}

	tests := []struct {
		name        string
		cut         int64
		speechEnded bool
	}{
		{"no cut", 0, false},
		{"speech ended", 50, true},
		{"cut at end", 200, false},
		{"cut past end", 900, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateWindow(window, tt.cut, tt.speechEnded, 16000); len(got) != 0 {
				t.Errorf("len = %d, want 0", len(got))
			}
		})
	}
}
