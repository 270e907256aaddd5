package stream

import (
	"regexp"
	"strings"

	"github.com/obiente/translate/whisperstream/internal/whisper"
)

// SplitMarker separates text that is safe to finalize from text the next
// iteration may still revise. Consumers split partial messages on it.
const SplitMarker = "{SPLIT}"

// timestampTokenPrefix marks whisper timestamp tokens, which double as
// pause markers when choosing a cut.
const timestampTokenPrefix = "[_TT_"

var cutPunctuation = map[string]bool{
	",": true, ".": true, "?": true, "!": true,
	"，": true, "。": true, "？": true, "！": true,
}

var specialToken = regexp.MustCompile(`\[_[^\]]*\]`)

// Reconciliation is the text built from one inference result.
type Reconciliation struct {
	// Text is the concatenated token text, possibly containing SplitMarker.
	Text string
	// Cut is the end timestamp, in centiseconds, of the token the window is
	// truncated at when the chunk is finalized. Zero means no cut was found.
	Cut int64
}

func isCutToken(text string) bool {
	return strings.HasPrefix(text, timestampTokenPrefix) || cutPunctuation[text]
}

// Reconcile concatenates the tokens of segments and picks the cut token.
//
// The midpoint is half the end time of the last token. Cut candidates ending
// before it are remembered as a fallback, the latest one winning. The first
// candidate at or after the midpoint settles the cut: if no fallback exists
// it becomes the cut and the marker follows it; otherwise the fallback stays
// the cut and the marker goes after the fallback. Markers are only placed
// there while speech is ongoing. If the scan ends with only a fallback, the
// marker is inserted after it regardless of speechEnded.
func Reconcile(segments []whisper.Segment, speechEnded bool) Reconciliation {
	var half int64
	if n := len(segments); n > 0 {
		if toks := segments[n-1].Tokens; len(toks) > 0 {
			half = toks[len(toks)-1].End / 2
		}
	}

	var (
		b           strings.Builder
		cut         int64
		found       bool
		targetIndex = -1
		splitAt     = -1
	)
	for _, seg := range segments {
		for _, tok := range seg.Tokens {
			if found || !isCutToken(tok.Text) {
				b.WriteString(tok.Text)
				continue
			}
			if tok.End < half {
				cut = tok.End
				targetIndex = b.Len() + len(tok.Text)
				b.WriteString(tok.Text)
				continue
			}
			if cut == 0 {
				cut = tok.End
				b.WriteString(tok.Text)
				if !speechEnded {
					splitAt = b.Len()
				}
			} else {
				if !speechEnded {
					splitAt = targetIndex
				}
				b.WriteString(tok.Text)
			}
			found = true
		}
	}
	if cut != 0 && !found {
		splitAt = targetIndex
	}

	text := b.String()
	if splitAt >= 0 {
		text = text[:splitAt] + SplitMarker + text[splitAt:]
	}
	return Reconciliation{Text: text, Cut: cut}
}

// StripSpecialTokens removes whisper control tokens such as [_BEG_] and
// [_TT_150] from text.
func StripSpecialTokens(text string) string {
	return specialToken.ReplaceAllString(text, "")
}

// truncateWindow drops the samples before the cut of a finalized chunk.
// Nothing is kept when speech ended, when no cut was found, or when the cut
// lies at or past the end of window.
func truncateWindow(window []float32, cut int64, speechEnded bool, sampleRate int) []float32 {
	if cut == 0 || speechEnded {
		return nil
	}
	idx := int(float64(cut) / 100.0 * float64(sampleRate))
	if idx >= len(window) {
		return nil
	}
	return append([]float32(nil), window[idx:]...)
}
