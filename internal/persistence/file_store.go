package persistence

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FileStore is the test-mode implementation: conversations are written to
// local JSON files instead of calling the workflow webhook.
type FileStore struct {
	dir string
}

// NewFileStore creates the output directory (including parents) if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create conversation dir %s", dir)
	}
	log.Info().Str("dir", dir).Msg("file persistence initialized")
	return &FileStore{dir: dir}, nil
}

// StoreConversation writes conversation_<YYYYMMDD_HHMMSS>.json (pretty UTF-8
// JSON, non-ASCII kept literal) and, when audio is present, a sibling .mp3
// whose local path is recorded in the JSON. Returns false only when the
// filesystem write itself fails.
func (s *FileStore) StoreConversation(_ context.Context, data ConversationData, audio []byte) bool {
	stamp := time.Now().Format("20060102_150405")
	payload := data.metadata()

	if len(audio) > 0 {
		audioPath := filepath.Join(s.dir, "conversation_"+stamp+".mp3")
		if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
			log.Error().Err(err).Str("path", audioPath).Msg("audio write failed")
			return false
		}
		payload["audio_file_local"] = audioPath
		log.Info().Str("path", audioPath).Int("bytes", len(audio)).Msg("saved audio recording")
	}

	encoded, err := encodeJSON(payload, true)
	if err != nil {
		log.Error().Err(err).Msg("conversation encode failed")
		return false
	}

	jsonPath := filepath.Join(s.dir, "conversation_"+stamp+".json")
	if err := os.WriteFile(jsonPath, encoded, 0o644); err != nil {
		log.Error().Err(err).Str("path", jsonPath).Msg("conversation write failed")
		return false
	}
	log.Info().Str("path", jsonPath).Msg("saved conversation")
	return true
}

// Close is a no-op for file storage.
func (s *FileStore) Close() {}
