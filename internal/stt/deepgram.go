// Package stt bridges the Deepgram live transcription WebSocket into the
// session's utterance channels. The model does the hard work; this package
// only feeds PCM in and assembles finalized utterances out.
package stt

import (
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Service streams 16kHz little-endian mono PCM to Deepgram and emits interim
// transcripts plus finalized utterances.
type Service struct {
	apiKey   string
	language string

	conn        *websocket.Conn
	transcripts chan string
	finalizeCh  chan string
	audioData   chan []byte
	stopCh      chan struct{}

	mu        sync.RWMutex
	connected bool

	accMu         sync.Mutex
	segments      []string
	lastVoiceTime time.Time
}

// resultMessage is the subset of Deepgram's live response we consume.
type resultMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	// SpeechFinal marks the end of an utterance per Deepgram's endpointing.
	SpeechFinal bool `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// NewService creates a transcription service. language follows Deepgram codes
// ("fr", "multi", ...); empty selects "multi".
func NewService(apiKey, language string) *Service {
	if language == "" {
		language = "multi"
	}
	return &Service{
		apiKey:      apiKey,
		language:    language,
		transcripts: make(chan string, 100),
		finalizeCh:  make(chan string, 10),
		audioData:   make(chan []byte, 1000),
		stopCh:      make(chan struct{}),
	}
}

// Connect establishes the live WebSocket session.
func (s *Service) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}
	if s.apiKey == "" {
		return errors.New("deepgram api key is empty")
	}

	params := url.Values{}
	params.Set("model", "nova-3")
	params.Set("language", s.language)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("interim_results", "true")
	params.Set("vad_events", "true")
	params.Set("utterance_end_ms", "1000")

	wsURL := "wss://api.deepgram.com/v1/listen?" + params.Encode()
	headers := map[string][]string{"Authorization": {"Token " + s.apiKey}}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Error().Int("status", resp.StatusCode).Msg("deepgram handshake rejected")
		}
		return errors.Wrap(err, "connect to deepgram")
	}

	s.conn = conn
	s.connected = true
	s.lastVoiceTime = time.Now()

	go s.readMessages()
	go s.writeAudio()

	log.Info().Str("language", s.language).Msg("deepgram live transcription connected")
	return nil
}

// SendPCM16KLE queues a PCM buffer for transmission. Buffers are dropped
// rather than blocking the caller when the queue is full.
func (s *Service) SendPCM16KLE(pcm []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return errors.New("not connected to deepgram")
	}
	select {
	case s.audioData <- pcm:
	default:
		log.Warn().Msg("audio buffer full, dropping packet")
	}
	return nil
}

// Transcripts returns the channel of interim transcript fragments.
func (s *Service) Transcripts() <-chan string { return s.transcripts }

// Finalize returns the channel of completed utterances.
func (s *Service) Finalize() <-chan string { return s.finalizeCh }

// RecentlyDetectedVoice reports whether speech activity was observed within
// the given window, based on Deepgram's VAD events.
func (s *Service) RecentlyDetectedVoice(window time.Duration) bool {
	s.accMu.Lock()
	last := s.lastVoiceTime
	s.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the session and closes all channels. Safe to call once.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	close(s.stopCh)
	if s.conn != nil {
		_ = s.conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = s.conn.Close()
	}
	s.connected = false
	s.conn = nil
	s.flushPending()
	close(s.audioData)
	close(s.transcripts)
	close(s.finalizeCh)
	log.Info().Msg("deepgram connection closed")
	return nil
}

func (s *Service) readMessages() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		var msg resultMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.stopCh:
			default:
				log.Error().Err(err).Msg("deepgram read error")
			}
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Service) handleMessage(msg resultMessage) {
	switch msg.Type {
	case "Results":
		text := ""
		if len(msg.Channel.Alternatives) > 0 {
			text = msg.Channel.Alternatives[0].Transcript
		}
		if text == "" {
			return
		}
		select {
		case s.transcripts <- text:
		default:
		}
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		if msg.IsFinal {
			s.segments = append(s.segments, text)
		}
		s.accMu.Unlock()
		if msg.SpeechFinal {
			s.emitUtterance()
		}
	case "SpeechStarted":
		s.accMu.Lock()
		s.lastVoiceTime = time.Now()
		s.accMu.Unlock()
	case "UtteranceEnd":
		// Endpointing fallback when no speech_final result arrived.
		s.emitUtterance()
	case "Metadata":
	default:
		log.Debug().Str("type", msg.Type).Msg("unhandled deepgram message")
	}
}

// emitUtterance joins accumulated final segments and delivers them downstream.
func (s *Service) emitUtterance() {
	s.accMu.Lock()
	utterance := joinSegments(s.segments)
	s.segments = nil
	s.accMu.Unlock()
	if utterance == "" {
		return
	}
	select {
	case <-s.stopCh:
	case s.finalizeCh <- utterance:
	}
}

func (s *Service) flushPending() {
	s.accMu.Lock()
	utterance := joinSegments(s.segments)
	s.segments = nil
	s.accMu.Unlock()
	if utterance == "" {
		return
	}
	select {
	case s.finalizeCh <- utterance:
	case <-time.After(200 * time.Millisecond):
		log.Warn().Msg("timed out delivering final utterance")
	}
}

func joinSegments(segments []string) string {
	out := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += seg
	}
	return out
}

func (s *Service) writeAudio() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm, ok := <-s.audioData:
			if !ok {
				return
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Error().Err(err).Msg("deepgram audio write error")
				return
			}
		}
	}
}
