// Package llm adapts a single-shot generation webhook into the incremental
// streaming response shape the voice pipeline consumes. One WebhookLLM instance
// lives for the duration of one call; each conversational turn is one Chat
// invocation producing one Stream.
package llm

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds each generation webhook round trip.
const DefaultTimeout = 8 * time.Second

// WebhookLLM sends each turn's user utterance to an external generation
// webhook and re-emits the response as a chunk stream.
type WebhookLLM struct {
	webhookURL string
	token      string
	timeout    time.Duration

	sessionID   string
	turnCounter atomic.Int64

	client *http.Client
}

// NewWebhookLLM creates an adapter for the given webhook URL. token may be
// empty; the session id is generated once and is constant for the adapter's
// lifetime. A zero timeout selects DefaultTimeout.
func NewWebhookLLM(webhookURL, token string, timeout time.Duration) *WebhookLLM {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookLLM{
		webhookURL: webhookURL,
		token:      token,
		timeout:    timeout,
		sessionID:  uuid.NewString(),
		client:     &http.Client{},
	}
}

// SessionID returns the id shared by every turn of this adapter instance.
func (l *WebhookLLM) SessionID() string { return l.sessionID }

// generationRequest is the fixed wire shape of one turn.
type generationRequest struct {
	SessionID      string          `json:"session_id"`
	TurnID         string          `json:"turn_id"`
	Input          generationInput `json:"input"`
	Context        map[string]any  `json:"context"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type generationInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Chat starts a new turn: it assigns the next turn id, extracts the latest
// user utterance from the history, and returns an unstarted Stream. No I/O
// happens until the stream is driven. Concurrent Chat calls on one adapter are
// permitted; each owns its own turn id and in-flight request.
func (l *WebhookLLM) Chat(history History) *Stream {
	turn := l.turnCounter.Add(1)
	userText := LatestUserText(history)

	payload := generationRequest{
		SessionID:      l.sessionID,
		TurnID:         "t_" + strconv.FormatInt(turn, 10),
		Input:          generationInput{Type: "text", Text: userText},
		Context:        map[string]any{},
		IdempotencyKey: uuid.NewString(),
	}

	log.Debug().
		Str("turn_id", payload.TurnID).
		Str("user_text", userText).
		Msg("chat turn created")

	return newStream(l, payload)
}

// Close releases the adapter's HTTP connections. Idempotent.
func (l *WebhookLLM) Close() {
	l.client.CloseIdleConnections()
}
