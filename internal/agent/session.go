// Package agent orchestrates one call: finalized utterances flow from the
// transcriber through the webhook LLM to speech synthesis, with the transcript
// and collected appointment details recorded along the way and persisted once
// at call end.
package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/barge"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/llm"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/persistence"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/recorder"
)

// emergencyMessage is spoken verbatim when an emergency keyword is detected.
const emergencyMessage = "Je ne peux pas gérer les urgences. En cas d'urgence médicale, composez le 15 immédiatement."

// emergencyKeywordsFR triggers the immediate redirect to emergency services.
var emergencyKeywordsFR = []string{
	"urgence",
	"urgent",
	"douleur forte",
	"douleur intense",
	"difficulté à respirer",
	"respirer",
	"accident",
	"chute",
	"saigne",
	"saignement",
	"inconscient",
	"crise cardiaque",
	"coeur",
	"poitrine",
	"évanouissement",
	"convulsion",
	"brûlure grave",
}

// isEmergency reports whether the utterance contains an emergency keyword.
func isEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range emergencyKeywordsFR {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// chunkReply splits an assistant reply into sentence-like chunks so the
// transcript can commit increments only after the corresponding audio played.
// Heuristic: split on '.', '?', '!' and newlines, retaining punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		case '\n', '\r':
			chunk := strings.TrimSpace(b.String())
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	tail := strings.TrimSpace(b.String())
	if tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}

// Session orchestrates STT -> LLM -> TTS for a single call and owns the
// conversation record for its lifetime.
type Session struct {
	transcriber Transcriber
	llm         ChatLLM
	tts         TTS
	sink        PCM48kSink
	recorder    *recorder.Recorder
	store       persistence.Store
	barge       *barge.Engine

	onTranscript func(text string)
	// onEmergency fires after the emergency redirect line has been spoken;
	// the owner is expected to end the call.
	onEmergency func()

	mu               sync.Mutex
	speaking         bool
	ttsCancel        context.CancelFunc
	bargeInRequested bool
	history          llm.History

	startedAt  time.Time
	llmModel   string
	ttsVoice   string
	testMode   bool
	recording  []byte
	finishOnce sync.Once
}

// Options carries the static metadata recorded with the conversation.
type Options struct {
	LLMModel string
	TTSVoice string
	TestMode bool
}

// NewSession constructs a Session around its collaborators. rec and store must
// be non-nil; sink may be nil when audio delivery is handled elsewhere.
func NewSession(t Transcriber, chat ChatLLM, tts TTS, sink PCM48kSink, rec *recorder.Recorder, store persistence.Store, opts Options) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	s := &Session{
		transcriber: t,
		llm:         chat,
		tts:         tts,
		sink:        sink,
		recorder:    rec,
		store:       store,
		llmModel:    opts.LLMModel,
		ttsVoice:    opts.TTSVoice,
		testMode:    opts.TestMode,
		startedAt:   time.Now(),
	}
	s.barge = barge.NewEngine(barge.DefaultConfig(), func(preRoll []byte) {
		s.BargeIn()
		// replay the pre-roll so the start of the interruption is transcribed
		if len(preRoll) > 0 {
			_ = s.transcriber.SendPCM16KLE(preRoll)
		}
	})
	return s
}

// OnTranscript registers a listener for live interim transcripts.
func (s *Session) OnTranscript(fn func(string)) { s.onTranscript = fn }

// OnEmergency registers the emergency redirect callback.
func (s *Session) OnEmergency(fn func()) { s.onEmergency = fn }

// Recorder exposes the conversation record, for tool handlers that collect
// patient and appointment details during the call.
func (s *Session) Recorder() *recorder.Recorder { return s.recorder }

// SetRecording attaches the call audio to be persisted alongside the
// transcript at call end.
func (s *Session) SetRecording(mp3 []byte) {
	s.mu.Lock()
	s.recording = mp3
	s.mu.Unlock()
}

// Greet speaks the fixed office greeting and records it as the first agent turn.
func (s *Session) Greet(ctx context.Context, greeting string) {
	if greeting == "" {
		return
	}
	s.speak(ctx, greeting)
	s.recorder.AddAgentMessage(greeting)
	s.mu.Lock()
	s.history.Append(llm.AssistantText(greeting))
	s.mu.Unlock()
}

// Start connects the transcriber and begins processing. It returns a stop function.
func (s *Session) Start(ctx context.Context) (func(), error) {
	if err := s.transcriber.Connect(); err != nil {
		return nil, err
	}

	// Stream live transcripts (optional UI)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-s.transcriber.Transcripts():
				if !ok {
					return
				}
				if t != "" {
					s.barge.NotifyPartial(t)
					if s.onTranscript != nil {
						s.onTranscript(t)
					}
				}
			}
		}
	}()

	// On finalized utterance -> record -> LLM -> TTS -> record
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case utterance, ok := <-s.transcriber.Finalize():
				if !ok {
					return
				}
				s.handleUtterance(ctx, utterance)
			}
		}
	}()

	stop := func() {
		_ = s.transcriber.Close()
	}
	return stop, nil
}

// handleUtterance runs one conversational turn for a finalized user utterance.
func (s *Session) handleUtterance(ctx context.Context, utterance string) {
	prompt := strings.TrimSpace(utterance)
	if prompt == "" {
		return
	}
	log.Info().Str("text", prompt).Msg("utterance finalized")

	if isEmergency(prompt) {
		log.Warn().Str("text", prompt).Msg("emergency keyword detected, redirecting caller")
		s.recorder.AddUserMessage(prompt)
		s.speak(ctx, emergencyMessage)
		s.recorder.AddAgentMessage(emergencyMessage)
		if s.onEmergency != nil {
			s.onEmergency()
		}
		return
	}

	// Hold the reply until the caller has actually gone quiet, bounded so a
	// noisy line cannot stall the conversation.
	waitCtx, waitCancel := context.WithTimeout(ctx, 3*time.Second)
	for waitCtx.Err() == nil {
		if !s.transcriber.RecentlyDetectedVoice(500 * time.Millisecond) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	waitCancel()

	s.recorder.AddUserMessage(prompt)
	s.mu.Lock()
	s.history.Append(llm.UserText(prompt))
	history := s.history
	s.mu.Unlock()

	reply := s.llm.Chat(history)
	go func() {
		for range reply.Events() {
		}
	}()
	text := strings.TrimSpace(reply.Message())
	if text == "" {
		return
	}

	spoken := s.speak(ctx, text)
	s.recorder.AddAgentMessage(spoken)
	s.mu.Lock()
	s.history.Append(llm.AssistantText(text))
	s.mu.Unlock()
}

// speak streams the reply through TTS chunk by chunk and returns exactly what
// was delivered to the caller, with an interruption marker if barged in.
func (s *Session) speak(ctx context.Context, reply string) string {
	ctxTTS, cancelTTS := context.WithCancel(ctx)
	s.mu.Lock()
	s.speaking = true
	s.ttsCancel = cancelTTS
	s.bargeInRequested = false
	s.mu.Unlock()
	s.barge.SetSpeaking(true)

	var spokenBuilder strings.Builder
	chunks := chunkReply(reply)
CHUNK_LOOP:
	for i, chunk := range chunks {
		s.mu.Lock()
		barged := s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}

		pcmCh, errCh := s.tts.StreamPCM48k(ctxTTS, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if ok {
					if len(b) > 0 {
						s.mu.Lock()
						drop := s.bargeInRequested
						s.mu.Unlock()
						if !drop {
							s.sink.WritePCM(b)
							s.barge.FeedTTSRef48k(b)
						}
					}
				} else {
					openPCM = false
				}
			case e, ok := <-errCh:
				if ok && e != nil {
					log.Error().Err(e).Msg("tts stream error")
				}
				openErr = false
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
		s.mu.Lock()
		barged = s.bargeInRequested
		s.mu.Unlock()
		if barged {
			break CHUNK_LOOP
		}
		spokenBuilder.WriteString(strings.TrimSpace(chunk))
		if i < len(chunks)-1 {
			spokenBuilder.WriteString(" ")
		}
	}

	s.mu.Lock()
	wasBarged := s.bargeInRequested
	s.speaking = false
	s.ttsCancel = nil
	s.bargeInRequested = false
	s.mu.Unlock()
	s.barge.SetSpeaking(false)
	s.barge.Reset()
	cancelTTS()
	if !wasBarged {
		s.sink.FlushTail()
	}

	spokenText := strings.TrimSpace(spokenBuilder.String())
	if wasBarged {
		if len(spokenText) > 0 {
			spokenText = spokenText + " [INTERUPTED BY USER]"
		} else {
			spokenText = "[INTERUPTED BY USER]"
		}
	}
	return spokenText
}

// FeedPCM16KLE sends input audio to the transcriber and the barge-in engine.
func (s *Session) FeedPCM16KLE(pcm []byte) {
	_ = s.transcriber.SendPCM16KLE(pcm)
	s.barge.FeedMic16k(pcm)
}

// IsSpeaking reports whether TTS is currently active for this session.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeIn cancels current TTS streaming and prevents further audio from being
// written to the sink.
func (s *Session) BargeIn() {
	s.mu.Lock()
	cancel := s.ttsCancel
	if s.speaking {
		s.bargeInRequested = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// Drop any queued audio immediately so the interruption feels instant
	s.sink.Reset()
}

// Finish snapshots the conversation and hands it to the persistence store.
// Exactly one snapshot is stored regardless of how many shutdown paths race
// into it. Returns whether the conversation was stored successfully.
func (s *Session) Finish(ctx context.Context) bool {
	stored := false
	s.finishOnce.Do(func() {
		s.mu.Lock()
		audio := s.recording
		s.mu.Unlock()

		data := persistence.ConversationData{
			VoiceAgentName:   s.recorder.AgentName(),
			Transcript:       s.recorder.FullTranscript(),
			ConversationDate: s.startedAt.Format("2006-01-02T15:04:05.000000"),
			PatientName:      s.recorder.PatientName(),
			PhoneNumber:      s.recorder.PhoneNumber(),
			BirthDate:        s.recorder.BirthDate(),
			Reason:           s.recorder.Reason(),
			AppointmentDate:  s.recorder.AppointmentDate(),
			AppointmentTime:  s.recorder.AppointmentTime(),
			SessionRoom:      s.llm.SessionID(),
			TotalTurns:       persistence.Int(s.recorder.TurnCount()),
			UserTurns:        persistence.Int(s.recorder.UserTurnCount()),
			AgentTurns:       persistence.Int(s.recorder.AgentTurnCount()),
			LLMModel:         s.llmModel,
			TTSVoice:         s.ttsVoice,
			TestMode:         persistence.Bool(s.testMode),
		}

		log.Info().Str("summary", s.recorder.Summary()).Msg("call finished")
		stored = s.store.StoreConversation(ctx, data, audio)
		if !stored {
			log.Error().Msg("conversation persistence failed")
		}
	})
	return stored
}

// Close shuts the session down in order: transcriber first so no further
// utterances arrive, then the snapshot, then the LLM and store. Idempotent.
func (s *Session) Close(ctx context.Context) {
	_ = s.transcriber.Close()
	s.Finish(ctx)
	s.llm.Close()
	s.store.Close()
}

// NewWebhookChat adapts a WebhookLLM to the ChatLLM interface.
func NewWebhookChat(l *llm.WebhookLLM) ChatLLM { return webhookChat{l} }

type webhookChat struct{ llm *llm.WebhookLLM }

func (w webhookChat) Chat(h llm.History) Reply { return w.llm.Chat(h) }
func (w webhookChat) SessionID() string        { return w.llm.SessionID() }
func (w webhookChat) Close()                   { w.llm.Close() }

type nopSink struct{}

func (nopSink) WritePCM(_ []byte) {}
func (nopSink) FlushTail()        {}
func (nopSink) Reset()            {}
