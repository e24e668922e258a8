package stt

import (
	"testing"
	"time"
)

func result(text string, isFinal, speechFinal bool) resultMessage {
	var msg resultMessage
	msg.Type = "Results"
	msg.IsFinal = isFinal
	msg.SpeechFinal = speechFinal
	msg.Channel.Alternatives = []struct {
		Transcript string `json:"transcript"`
	}{{Transcript: text}}
	return msg
}

func TestHandleMessage_AccumulatesFinalsUntilSpeechFinal(t *testing.T) {
	s := NewService("key", "fr")

	s.handleMessage(result("bonjour je", true, false))
	s.handleMessage(result("bonjour je voudrais", false, false))
	s.handleMessage(result("voudrais un rendez-vous", true, true))

	select {
	case got := <-s.finalizeCh:
		want := "bonjour je voudrais un rendez-vous"
		if got != want {
			t.Errorf("utterance = %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no finalized utterance")
	}
}

func TestHandleMessage_UtteranceEndFlushesSegments(t *testing.T) {
	s := NewService("key", "fr")

	s.handleMessage(result("allo", true, false))
	s.handleMessage(resultMessage{Type: "UtteranceEnd"})

	select {
	case got := <-s.finalizeCh:
		if got != "allo" {
			t.Errorf("utterance = %q, want %q", got, "allo")
		}
	case <-time.After(time.Second):
		t.Fatal("no finalized utterance")
	}
}

func TestHandleMessage_EmptyUtteranceNotEmitted(t *testing.T) {
	s := NewService("key", "fr")

	s.handleMessage(result("", true, true))
	s.handleMessage(resultMessage{Type: "UtteranceEnd"})

	select {
	case got := <-s.finalizeCh:
		t.Errorf("unexpected utterance %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleMessage_InterimsForwarded(t *testing.T) {
	s := NewService("key", "fr")

	s.handleMessage(result("bonj", false, false))
	s.handleMessage(result("bonjour", false, false))

	for _, want := range []string{"bonj", "bonjour"} {
		select {
		case got := <-s.transcripts:
			if got != want {
				t.Errorf("interim = %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing interim %q", want)
		}
	}
}

func TestRecentlyDetectedVoice(t *testing.T) {
	s := NewService("key", "fr")
	s.accMu.Lock()
	s.lastVoiceTime = time.Now().Add(-5 * time.Second)
	s.accMu.Unlock()

	if s.RecentlyDetectedVoice(time.Second) {
		t.Error("expected no recent voice with stale timestamp")
	}

	s.handleMessage(resultMessage{Type: "SpeechStarted"})
	if !s.RecentlyDetectedVoice(time.Second) {
		t.Error("expected recent voice after SpeechStarted")
	}
}

func TestConnect_EmptyKey(t *testing.T) {
	s := NewService("", "fr")
	if err := s.Connect(); err == nil {
		t.Error("expected error for empty api key")
	}
}
