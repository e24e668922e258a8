package persistence

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore persists conversations as objects in a Supabase storage
// bucket: the JSON payload plus the MP3 recording when present.
type SupabaseStore struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStore connects with the service-role key.
func NewSupabaseStore(url, serviceRoleKey, bucket string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "create supabase client")
	}
	log.Info().Str("bucket", bucket).Msg("supabase persistence initialized")
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

// StoreConversation uploads conversation_<YYYYMMDD_HHMMSS>.json and the
// optional recording to the bucket. Returns false on any upload failure.
func (s *SupabaseStore) StoreConversation(_ context.Context, data ConversationData, audio []byte) bool {
	stamp := time.Now().Format("20060102_150405")
	payload := data.metadata()

	if len(audio) > 0 {
		audioKey := "conversation_" + stamp + ".mp3"
		if _, err := s.client.Storage.UploadFile(s.bucket, audioKey, bytes.NewReader(audio)); err != nil {
			log.Error().Err(err).Str("key", audioKey).Msg("audio upload failed")
			return false
		}
		payload["audio_object"] = audioKey
		log.Info().Str("key", audioKey).Int("bytes", len(audio)).Msg("uploaded audio recording")
	}

	encoded, err := encodeJSON(payload, true)
	if err != nil {
		log.Error().Err(err).Msg("conversation encode failed")
		return false
	}

	jsonKey := "conversation_" + stamp + ".json"
	if _, err := s.client.Storage.UploadFile(s.bucket, jsonKey, bytes.NewReader(encoded)); err != nil {
		log.Error().Err(err).Str("key", jsonKey).Msg("conversation upload failed")
		return false
	}
	log.Info().Str("key", jsonKey).Msg("uploaded conversation")
	return true
}

// Close is a no-op; the Supabase client holds no long-lived connections.
func (s *SupabaseStore) Close() {}
