package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/translate/whisperstream/internal/audio"
	"github.com/obiente/translate/whisperstream/internal/config"
	"github.com/obiente/translate/whisperstream/internal/observe"
	"github.com/obiente/translate/whisperstream/internal/stream"
	"github.com/obiente/translate/whisperstream/internal/translation"
	"github.com/obiente/translate/whisperstream/internal/whisper"
)

const (
	readWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	outboxSize = 64
)

type Server struct {
	cfg        config.Config
	backend    whisper.Backend
	weights    []byte
	metrics    *observe.Metrics
	translator *translation.Client
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*peer]struct{}
}

// NewServer returns a websocket host. Every connection loads its own model
// context from weights, which are shared read-only across connections.
func NewServer(cfg config.Config, backend whisper.Backend, weights []byte, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		cfg:     cfg,
		backend: backend,
		weights: weights,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		rooms:      make(map[string]map[*peer]struct{}),
		translator: translation.New(cfg.TranslationBaseURL, cfg.TranslationTimeoutSec),
	}
}

// peer is one websocket connection. Only writeLoop writes to ws.
type peer struct {
	ws  *websocket.Conn
	out chan any
	log zerolog.Logger

	mu   sync.Mutex
	info member
	room string
}

func (p *peer) memberInfo() member {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func (p *peer) currentRoom() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

// enqueue waits for room in the outbox unless ctx ends first.
func (p *peer) enqueue(ctx context.Context, v any) {
	select {
	case p.out <- v:
	case <-ctx.Done():
	}
}

// offer queues v without waiting and reports whether it was accepted.
func (p *peer) offer(v any) bool {
	select {
	case p.out <- v:
		return true
	default:
		return false
	}
}

func (p *peer) write(v any) error {
	_ = p.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return p.ws.WriteJSON(v)
}

// writeLoop sends queued frames until ctx ends, then flushes what is left
// and closes the connection normally.
func (p *peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case v := <-p.out:
			if err := p.write(v); err != nil {
				_ = p.ws.Close()
				return fmt.Errorf("ws: write: %w", err)
			}
		case <-ctx.Done():
			for {
				select {
				case v := <-p.out:
					if err := p.write(v); err != nil {
						return nil
					}
				default:
					_ = p.ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return nil
				}
			}
		}
	}
}

// connState is the transcription state of one connection. Fields other
// than prefs and seq are owned by the read loop.
type connState struct {
	settings   stream.Settings
	model      *whisper.Model
	session    *stream.Session
	dispatcher *stream.Dispatcher

	seq atomic.Int64

	prefsMu sync.Mutex
	source  string
	targets []string
	alts    int
}

func (st *connState) setPrefs(source string, msg *clientMessage) {
	st.prefsMu.Lock()
	defer st.prefsMu.Unlock()
	st.source = source
	if msg.TargetLanguages != nil {
		st.targets = append([]string(nil), msg.TargetLanguages...)
	}
	if msg.TranslationAlternatives != nil {
		st.alts = max(*msg.TranslationAlternatives, 0)
	}
}

func (st *connState) prefs() (string, []string, int) {
	st.prefsMu.Lock()
	defer st.prefsMu.Unlock()
	return st.source, st.targets, st.alts
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer c.Close()

	p := &peer{
		ws:  c,
		out: make(chan any, outboxSize),
		log: log.With().Str("remote", r.RemoteAddr).Logger(),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.writeLoop(gctx) })
	g.Go(func() error {
		defer cancel()
		return s.readLoop(gctx, p)
	})
	if err := g.Wait(); err != nil {
		p.log.Debug().Err(err).Msg("ws connection ended")
	}
}

func (s *Server) readLoop(ctx context.Context, p *peer) error {
	st := &connState{settings: s.cfg.Whisper}
	defer s.teardown(p, st)

	_ = p.ws.SetReadDeadline(time.Now().Add(readWait))
	p.ws.SetPongHandler(func(string) error { return p.ws.SetReadDeadline(time.Now().Add(readWait)) })

	for {
		mt, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("ws: read: %w", err)
		}
		// Bump read deadline on any activity
		_ = p.ws.SetReadDeadline(time.Now().Add(readWait))
		if mt != websocket.TextMessage {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.enqueue(ctx, newError("invalid json"))
			continue
		}
		switch msg.Type {
		case "ping":
			p.enqueue(ctx, map[string]any{"type": "pong", "ts": msg.TS})
		case "start":
			s.start(ctx, p, st, &msg)
		case "config":
			s.configure(ctx, p, st, &msg)
		case "chunk":
			s.chunk(ctx, p, st, &msg)
		case "join_room":
			if msg.RoomID == "" {
				break
			}
			p.mu.Lock()
			prev := p.room
			if msg.PeerID != "" {
				p.info.PeerID = msg.PeerID
			}
			if msg.PeerLabel != "" {
				p.info.PeerLabel = msg.PeerLabel
			}
			p.room = msg.RoomID
			info := p.info
			p.mu.Unlock()
			if prev != "" && prev != msg.RoomID {
				s.leaveRoom(prev, p)
			}
			s.joinRoom(msg.RoomID, p)
			p.enqueue(ctx, map[string]any{"type": "room_joined", "room_id": msg.RoomID, "peer_id": info.PeerID, "peer_label": info.PeerLabel})
		case "leave_room":
			p.mu.Lock()
			room := p.room
			p.room = ""
			p.mu.Unlock()
			s.leaveRoom(room, p)
			p.enqueue(ctx, map[string]any{"type": "room_left"})
		case "stop":
			// Pending transcripts are flushed before the acknowledgement.
			s.teardown(p, st)
			p.enqueue(ctx, map[string]any{"type": "stopped"})
			return nil
		default:
			p.enqueue(ctx, newError("unknown message type"))
		}
	}
}

func (s *Server) start(ctx context.Context, p *peer, st *connState, msg *clientMessage) {
	set := msg.apply(st.settings)
	if err := set.Validate(); err != nil {
		p.enqueue(ctx, newError(err.Error()))
		return
	}
	st.settings = set
	st.setPrefs(set.Language, msg)
	if msg.ChannelID != nil {
		p.mu.Lock()
		p.info.ChannelID = *msg.ChannelID
		p.mu.Unlock()
	}

	if st.model == nil {
		st.model = whisper.NewModel(s.backend)
	}
	if !st.model.Loaded() {
		if err := st.model.Load(s.weights, whisper.LoadOptions{UseGPU: set.UseGPU}); err != nil {
			p.log.Error().Err(err).Msg("model load failed")
			p.enqueue(ctx, newError("model load failed"))
			return
		}
	}

	if st.session == nil {
		st.dispatcher = stream.NewDispatcher(func(e stream.Event) { s.deliver(ctx, p, st, e) })
		st.session = stream.NewSession(st.model, st.dispatcher,
			stream.WithLogger(p.log),
			stream.WithMetrics(s.metrics),
			stream.WithTiming(s.cfg.Stream),
			stream.WithSettings(set),
		)
	} else if err := st.session.UpdateSettings(set); err != nil {
		p.enqueue(ctx, newError(err.Error()))
		return
	}
	st.session.Start(ctx)

	_, targets, alts := st.prefs()
	p.log.Info().
		Str("session", st.session.ID()).
		Str("source_lang", set.Language).
		Strs("target_langs", targets).
		Int("alternatives", alts).
		Msg("session started with configuration")
	p.enqueue(ctx, map[string]any{"type": "started", "session_id": st.session.ID()})
}

func (s *Server) configure(ctx context.Context, p *peer, st *connState, msg *clientMessage) {
	set := msg.apply(st.settings)
	if st.session != nil {
		if err := st.session.UpdateSettings(set); err != nil {
			p.enqueue(ctx, newError(err.Error()))
			return
		}
	} else if err := set.Validate(); err != nil {
		p.enqueue(ctx, newError(err.Error()))
		return
	}
	st.settings = set
	st.setPrefs(set.Language, msg)
	p.enqueue(ctx, map[string]any{"type": "configured"})
}

func (s *Server) chunk(ctx context.Context, p *peer, st *connState, msg *clientMessage) {
	if msg.Data == "" {
		return
	}
	if st.session == nil {
		p.enqueue(ctx, newError("not listening"))
		return
	}
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		p.enqueue(ctx, newError("invalid base64 audio"))
		return
	}
	pcm, err := decodeChunk(raw, msg.MimeType, int(asFloat(msg.SampleRate)), int(asFloat(msg.Channels)))
	if err != nil {
		p.log.Warn().Err(err).Str("mime_type", msg.MimeType).Msg("audio decode failed")
		p.enqueue(ctx, newError("decode audio failed"))
		return
	}
	if msg.Sequence != nil {
		st.seq.Store(int64(asFloat(msg.Sequence)))
	}
	if err := st.session.AddAudio(pcm.Samples, pcm.Channels, pcm.SampleRate); err != nil {
		if errors.Is(err, stream.ErrNotListening) {
			p.enqueue(ctx, newError("not listening"))
			return
		}
		p.enqueue(ctx, newError(err.Error()))
	}
}

func decodeChunk(raw []byte, mime string, sampleRate, channels int) (audio.PCM, error) {
	switch mime {
	case "audio/pcm", "audio/L16", "audio/pcm16":
		return audio.DecodePCM16LE(raw, sampleRate, channels)
	case "audio/f32", "audio/float32":
		return audio.DecodeFloat32LE(raw, sampleRate, channels)
	default:
		return audio.DecodeWAV(raw)
	}
}

// deliver runs on the dispatcher goroutine, so translation latency never
// holds up the transcription loop.
func (s *Server) deliver(ctx context.Context, p *peer, st *connState, e stream.Event) {
	msg := transcriptMessage{
		Type:      "transcript",
		ElapsedMs: e.ElapsedMs,
		Messages:  e.Messages,
		Sequence:  st.seq.Load(),
	}

	if text := finalText(e.Messages); text != "" && s.cfg.TranslationEnabled {
		source, targets, alts := st.prefs()
		if len(targets) > 0 {
			if source == whisper.AutoLanguage {
				source = ""
			}
			tctx, cancel := context.WithTimeout(ctx, time.Duration(max(s.cfg.TranslationTimeoutSec, 1))*time.Second)
			res, err := s.translator.Translate(tctx, text, source, targets, alts)
			cancel()
			if err != nil {
				p.log.Warn().Err(err).Str("text", text).Msg("translation request failed")
			} else {
				msg.Translations = res
			}
		}
	}

	p.enqueue(ctx, msg)
	if room := p.currentRoom(); room != "" {
		info := p.memberInfo()
		s.broadcast(room, p, roomTranscriptMessage{
			transcriptMessage: transcriptMessage{
				Type:         "room_transcript",
				ElapsedMs:    msg.ElapsedMs,
				Messages:     msg.Messages,
				Sequence:     msg.Sequence,
				Translations: msg.Translations,
			},
			RoomID:    room,
			PeerID:    info.PeerID,
			PeerLabel: info.PeerLabel,
			ChannelID: info.ChannelID,
		})
	}
}

// finalText joins the finalized messages of an event without split markers.
func finalText(msgs []stream.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.IsPartial {
			continue
		}
		if t := strings.TrimSpace(strings.ReplaceAll(m.Text, stream.SplitMarker, "")); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// teardown stops the session, flushes its pending events and frees the
// model. It is safe to call more than once.
func (s *Server) teardown(p *peer, st *connState) {
	if st.session != nil {
		st.session.Stop()
		st.session = nil
	}
	if st.dispatcher != nil {
		st.dispatcher.Close()
		st.dispatcher = nil
	}
	if st.model != nil {
		if err := st.model.Release(); err != nil {
			p.log.Warn().Err(err).Msg("model release failed")
		}
		st.model = nil
	}
	p.mu.Lock()
	room := p.room
	p.room = ""
	p.mu.Unlock()
	s.leaveRoom(room, p)
}

func (s *Server) joinRoom(room string, p *peer) {
	if room == "" {
		return
	}
	s.mu.Lock()
	m := s.rooms[room]
	if m == nil {
		m = make(map[*peer]struct{})
		s.rooms[room] = m
	}
	m[p] = struct{}{}
	s.mu.Unlock()
	s.broadcastRoster(room)
}

func (s *Server) leaveRoom(room string, p *peer) {
	if room == "" || p == nil {
		return
	}
	s.mu.Lock()
	if m := s.rooms[room]; m != nil {
		delete(m, p)
		if len(m) == 0 {
			delete(s.rooms, room)
		}
	}
	s.mu.Unlock()
	s.broadcastRoster(room)
}

// broadcast offers v to every other peer in room. Peers sharing the
// sender's peer id are skipped. Slow peers lose the message.
func (s *Server) broadcast(room string, sender *peer, v any) {
	senderID := sender.memberInfo().PeerID
	s.mu.RLock()
	defer s.mu.RUnlock()
	for q := range s.rooms[room] {
		if q == sender {
			continue
		}
		if senderID != "" && q.memberInfo().PeerID == senderID {
			continue
		}
		if !q.offer(v) {
			q.log.Warn().Str("room", room).Msg("outbox full, dropping room message")
		}
	}
}

func (s *Server) broadcastRoster(room string) {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.rooms[room]))
	for q := range s.rooms[room] {
		peers = append(peers, q)
	}
	s.mu.RUnlock()

	members := make([]member, 0, len(peers))
	for _, q := range peers {
		members = append(members, q.memberInfo())
	}
	roster := rosterMessage{Type: "room_roster", Members: members}
	for _, q := range peers {
		q.offer(roster)
	}
}
