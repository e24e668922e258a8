// Package persistence stores a finished conversation (transcript plus
// collected metadata, optionally the call recording) at call end. Storage
// failures are reported as a false return and a logged error, never as a
// panic or an error value: by the time a conversation is stored the call is
// already over and nothing upstream can react.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/config"
)

// ConversationData is a flat immutable snapshot of one finished call.
// Optional fields left at their zero value (or nil pointers) are omitted from
// every stored payload.
type ConversationData struct {
	VoiceAgentName   string
	Transcript       string
	ConversationDate string

	PatientName       string
	PhoneNumber       string
	BirthDate         string
	Reason            string
	AppointmentDate   string
	AppointmentTime   string
	AudioRecordingURL string

	// Session identifiers, for correlating with runtime logs.
	SessionRoom  string
	SessionJobID string

	// Conversation metrics.
	TotalTurns *int
	UserTurns  *int
	AgentTurns *int

	// Speech processing metrics.
	STTAudioDurationSeconds *float64
	TTSAudioDurationSeconds *float64
	TTSCharacterCount       *int

	// Configuration info.
	LLMModel string
	TTSVoice string
	TestMode *bool
}

// Int returns a pointer to v, for the optional metric fields.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for the optional metric fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for the optional flag fields.
func Bool(v bool) *bool { return &v }

// metadata flattens the snapshot into the wire payload. Unset optionals are
// dropped entirely rather than sent as null.
func (d ConversationData) metadata() map[string]any {
	m := map[string]any{
		"action":            "store_conversation",
		"voice_agent_name":  d.VoiceAgentName,
		"transcript":        d.Transcript,
		"conversation_date": d.ConversationDate,
	}
	addString := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	addString("patient_name", d.PatientName)
	addString("phone_number", d.PhoneNumber)
	addString("birth_date", d.BirthDate)
	addString("reason", d.Reason)
	addString("appointment_date", d.AppointmentDate)
	addString("appointment_time", d.AppointmentTime)
	addString("audio_recording_url", d.AudioRecordingURL)
	addString("session_room", d.SessionRoom)
	addString("session_job_id", d.SessionJobID)
	addString("llm_model", d.LLMModel)
	addString("tts_voice", d.TTSVoice)
	if d.TotalTurns != nil {
		m["total_turns"] = *d.TotalTurns
	}
	if d.UserTurns != nil {
		m["user_turns"] = *d.UserTurns
	}
	if d.AgentTurns != nil {
		m["agent_turns"] = *d.AgentTurns
	}
	if d.STTAudioDurationSeconds != nil {
		m["stt_audio_duration_seconds"] = *d.STTAudioDurationSeconds
	}
	if d.TTSAudioDurationSeconds != nil {
		m["tts_audio_duration_seconds"] = *d.TTSAudioDurationSeconds
	}
	if d.TTSCharacterCount != nil {
		m["tts_characters_count"] = *d.TTSCharacterCount
	}
	if d.TestMode != nil {
		m["test_mode"] = *d.TestMode
	}
	return m
}

// encodeJSON marshals v as UTF-8 JSON with non-ASCII characters kept literal.
// Transcripts are French; escaping accented characters would corrupt them for
// the downstream spreadsheet workflow.
func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Store persists one finished conversation. Implementations must not panic;
// failures are reported as a false return.
type Store interface {
	StoreConversation(ctx context.Context, data ConversationData, audio []byte) bool
	// Close releases resources. Idempotent; called once during ordered shutdown.
	Close()
}

// New selects the persistence implementation from configuration. Test mode
// wins, then a configured Supabase backend, then the workflow webhook. The
// choice is made once at startup; there is no runtime failover between them.
func New(cfg config.Config) (Store, error) {
	if cfg.TestMode {
		return NewFileStore(cfg.ConversationDir)
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" && cfg.SupabaseBucket != "" {
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)
	}
	if cfg.WebhookBaseURL == "" {
		return nil, errors.New("WEBHOOK_BASE_URL must be set when TEST_MODE is not enabled")
	}
	return NewWebhookStore(cfg.WebhookBaseURL, cfg.WebhookToken, cfg.PersistenceTimeout), nil
}
