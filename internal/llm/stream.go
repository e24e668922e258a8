package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Fixed fallback sentences. Every upstream failure resolves to one of these and
// is delivered as a normal, complete chunk stream; an exception escaping
// mid-stream would abort the voice session, so these are load-bearing.
const (
	FallbackUpstreamError = "I'm having trouble processing your request right now."
	FallbackTimeout       = "The request timed out. Please try again."
	FallbackTransport     = "I encountered an error. Please try again."
	FallbackEmpty         = "I couldn't generate a response."
)

// ChunkSize is the fixed chunk length, in runes, used when re-emitting the
// resolved response as incremental deltas.
const ChunkSize = 50

// chunkPause smooths delivery into downstream TTS; not a correctness concern.
const chunkPause = 20 * time.Millisecond

// ChoiceDelta is one incremental content delta.
type ChoiceDelta struct {
	Role    string
	Content string
}

// ChatChunk is one streamed event.
type ChatChunk struct {
	ID    string
	Delta ChoiceDelta
}

// Stream is the not-yet-started response stream returned by Chat. The webhook
// call and chunk emission happen once the stream is first driven. Iterating
// past the last chunk observes a closed channel, never an error.
type Stream struct {
	llm     *WebhookLLM
	payload generationRequest

	events chan ChatChunk
	once   sync.Once

	resolved chan struct{}
	message  string
}

func newStream(l *WebhookLLM, payload generationRequest) *Stream {
	return &Stream{
		llm:      l,
		payload:  payload,
		events:   make(chan ChatChunk),
		resolved: make(chan struct{}),
	}
}

// Events starts the stream on first use and returns the chunk channel. The
// channel is closed after the final chunk.
func (s *Stream) Events() <-chan ChatChunk {
	s.once.Do(func() { go s.run() })
	return s.events
}

// Message blocks until the upstream response has been resolved, then returns
// the complete assistant message. It is valid before the chunk stream has been
// fully drained: the message is resolved before emission begins.
func (s *Stream) Message() string {
	s.Events()
	<-s.resolved
	return s.message
}

// run performs the single webhook round trip, resolves the response text, and
// re-emits it as fixed-size deltas.
func (s *Stream) run() {
	defer close(s.events)

	text := s.fetch()
	if text == "" {
		text = FallbackEmpty
	}

	s.message = text
	close(s.resolved)

	runes := []rune(text)
	for start := 0; start < len(runes); start += ChunkSize {
		end := start + ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		s.events <- ChatChunk{
			ID:    uuid.NewString(),
			Delta: ChoiceDelta{Role: "assistant", Content: string(runes[start:end])},
		}
		time.Sleep(chunkPause)
	}
}

// fetch performs the webhook POST and maps every outcome to a response text.
// It never returns an error: all failure paths resolve to a fallback sentence.
func (s *Stream) fetch() string {
	body, err := json.Marshal(s.payload)
	if err != nil {
		log.Error().Err(err).Msg("generation payload marshal failed")
		return FallbackTransport
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.llm.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.llm.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("generation request build failed")
		return FallbackTransport
	}
	req.Header.Set("Content-Type", "application/json")
	if s.llm.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.llm.token)
	}

	log.Info().Str("turn_id", s.payload.TurnID).Str("url", s.llm.webhookURL).Msg("generation webhook call")

	resp, err := s.llm.client.Do(req)
	if err != nil {
		if streamTimeout(err, ctx) {
			log.Error().Dur("timeout", s.llm.timeout).Str("turn_id", s.payload.TurnID).Msg("generation webhook timeout")
			return FallbackTimeout
		}
		log.Error().Err(err).Str("turn_id", s.payload.TurnID).Msg("generation webhook transport error")
		return FallbackTransport
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if streamTimeout(err, ctx) {
			return FallbackTimeout
		}
		log.Error().Err(err).Str("turn_id", s.payload.TurnID).Msg("generation response read error")
		return FallbackTransport
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("generation webhook error status")
		return FallbackUpstreamError
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return extractJSONText(raw)
	}
	return string(raw)
}

// extractJSONText resolves the response text from a JSON body, checking the
// keys output, response, text, message in priority order.
func extractJSONText(raw []byte) string {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		// Declared JSON but unparseable: fall back to the raw body text.
		return string(raw)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, key := range []string{"output", "response", "text", "message"} {
			value, ok := v[key]
			if !ok || !truthy(value) {
				continue
			}
			switch inner := value.(type) {
			case string:
				return inner
			case map[string]any:
				if nested, ok := inner["text"].(string); ok && nested != "" {
					return nested
				}
				return ""
			default:
				return fmt.Sprint(inner)
			}
		}
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func streamTimeout(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
