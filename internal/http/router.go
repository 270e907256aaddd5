package http

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves health, metrics and the streaming transcription socket.
func NewRouter(transcribe http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	// Streaming transcription WebSocket
	mux.HandleFunc("/ws/transcribe", transcribe)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
