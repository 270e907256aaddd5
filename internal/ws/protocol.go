package ws

import (
	"strconv"
	"strings"

	"github.com/obiente/translate/whisperstream/internal/stream"
	"github.com/obiente/translate/whisperstream/internal/translation"
)

// clientMessage is the union of every client frame. Settings fields are
// pointers so that a config frame only changes what it names.
type clientMessage struct {
	Type string `json:"type"`

	// start / config
	Language                *string  `json:"language"`
	Translate               *bool    `json:"translate"`
	UseGPU                  *bool    `json:"use_gpu"`
	EntropyThreshold        *float32 `json:"entropy_threshold"`
	VADThreshold            *float32 `json:"vad_threshold"`
	FreqThreshold           *float32 `json:"freq_threshold"`
	MaxTokens               *int     `json:"max_tokens"`
	Threads                 *int     `json:"threads"`
	SpeedUp                 *bool    `json:"speed_up"`
	TargetLanguages         []string `json:"target_languages"`
	TranslationAlternatives *int     `json:"translation_alternatives"`
	ChannelID               *string  `json:"channel_id"`

	// chunk
	Data       string `json:"data"`
	MimeType   string `json:"mime_type"`
	SampleRate any    `json:"sample_rate"`
	Channels   any    `json:"channels"`
	Sequence   any    `json:"sequence"`

	// join_room
	RoomID    string `json:"room_id"`
	PeerID    string `json:"peer_id"`
	PeerLabel string `json:"peer_label"`

	// ping
	TS any `json:"ts"`
}

// apply overlays the settings named in m onto set.
func (m *clientMessage) apply(set stream.Settings) stream.Settings {
	if m.Language != nil {
		set.Language = *m.Language
	}
	if m.Translate != nil {
		set.Translate = *m.Translate
	}
	if m.UseGPU != nil {
		set.UseGPU = *m.UseGPU
	}
	if m.EntropyThreshold != nil {
		set.EntropyThreshold = *m.EntropyThreshold
	}
	if m.VADThreshold != nil {
		set.VADThreshold = *m.VADThreshold
	}
	if m.FreqThreshold != nil {
		set.FreqThreshold = *m.FreqThreshold
	}
	if m.MaxTokens != nil {
		set.MaxTokens = *m.MaxTokens
	}
	if m.Threads != nil {
		set.Threads = *m.Threads
	}
	if m.SpeedUp != nil {
		set.SpeedUp = *m.SpeedUp
	}
	return set
}

type transcriptMessage struct {
	Type         string                        `json:"type"`
	ElapsedMs    int64                         `json:"elapsed_ms"`
	Messages     []stream.Message              `json:"messages"`
	Sequence     int64                         `json:"sequence"`
	Translations map[string]translation.Result `json:"translations,omitempty"`
}

type roomTranscriptMessage struct {
	transcriptMessage
	RoomID    string `json:"room_id"`
	PeerID    string `json:"peer_id"`
	PeerLabel string `json:"peer_label"`
	ChannelID string `json:"channel_id"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func newError(detail string) errorMessage {
	return errorMessage{Type: "error", Detail: detail}
}

type member struct {
	PeerID    string `json:"peer_id"`
	PeerLabel string `json:"peer_label"`
	ChannelID string `json:"channel_id"`
}

type rosterMessage struct {
	Type    string   `json:"type"`
	Members []member `json:"members"`
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
