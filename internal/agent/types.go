package agent

import (
	"context"
	"time"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/llm"
)

// Transcriber is the minimal interface for realtime STT.
// It must accept PCM 16kHz little-endian mono buffers and emit live and finalized text.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	Transcripts() <-chan string
	Finalize() <-chan string
	// RecentlyDetectedVoice returns true if voice energy was seen within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// Reply is one streamed assistant response.
type Reply interface {
	Events() <-chan llm.ChatChunk
	Message() string
}

// ChatLLM produces one streamed reply per completed user utterance.
type ChatLLM interface {
	Chat(history llm.History) Reply
	SessionID() string
	Close()
}

// TTS streams 48kHz PCM mono audio for the given text.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// PCM48kSink consumes 48kHz PCM bytes and performs delivery.
// Implementations should buffer internally and pace delivery.
type PCM48kSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued frames immediately (used for barge-in).
	Reset()
}
