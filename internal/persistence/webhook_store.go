package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds metadata-only store calls; uploads with audio get
// double this budget.
const DefaultTimeout = 10 * time.Second

// WebhookStore persists conversations by POSTing them to the workflow
// webhook, which owns the spreadsheet upsert logic.
type WebhookStore struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookStore creates a store for {baseURL}/store_conversation. token may
// be empty. A zero timeout selects DefaultTimeout.
func NewWebhookStore(baseURL, token string, timeout time.Duration) *WebhookStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// StoreConversation sends the metadata (and the MP3 recording, when present)
// to the webhook. Returns true only for an HTTP 200 with a parseable JSON
// body; every failure is logged and reported as false.
func (s *WebhookStore) StoreConversation(ctx context.Context, data ConversationData, audio []byte) bool {
	url := s.baseURL + "/store_conversation"
	metadata := data.metadata()

	log.Info().Str("url", url).Int("audio_bytes", len(audio)).Msg("storing conversation")

	var body io.Reader
	contentType := "application/json; charset=utf-8"
	timeout := s.timeout

	encoded, err := encodeJSON(metadata, false)
	if err != nil {
		log.Error().Err(err).Msg("conversation metadata encode failed")
		return false
	}

	if len(audio) > 0 {
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)

		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="metadata"`)
		header.Set("Content-Type", "application/json; charset=utf-8")
		part, err := writer.CreatePart(header)
		if err == nil {
			_, err = part.Write(encoded)
		}
		if err != nil {
			log.Error().Err(err).Msg("multipart metadata write failed")
			return false
		}

		fileHeader := textproto.MIMEHeader{}
		fileHeader.Set("Content-Disposition", `form-data; name="audio"; filename="recording.mp3"`)
		fileHeader.Set("Content-Type", "audio/mpeg")
		filePart, err := writer.CreatePart(fileHeader)
		if err == nil {
			_, err = filePart.Write(audio)
		}
		if err == nil {
			err = writer.Close()
		}
		if err != nil {
			log.Error().Err(err).Msg("multipart audio write failed")
			return false
		}

		body = buf
		contentType = writer.FormDataContentType()
		timeout = s.timeout * 2
	} else {
		body = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, body)
	if err != nil {
		log.Error().Err(err).Msg("store request build failed")
		return false
	}
	req.Header.Set("Content-Type", contentType)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("store request failed")
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("store rejected")
		return false
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		log.Error().Err(err).Str("body", string(respBody)).Msg("store response not JSON")
		return false
	}
	log.Info().Interface("result", result).Msg("conversation stored")
	return true
}

// Close releases the underlying connections. Idempotent.
func (s *WebhookStore) Close() {
	s.client.CloseIdleConnections()
}
