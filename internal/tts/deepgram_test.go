package tts

import (
	"context"
	"testing"
	"time"
)

func TestNewSynthesizer_DefaultModel(t *testing.T) {
	s := NewSynthesizer("key", "")
	if s.Model() != DefaultModel {
		t.Errorf("model = %q, want %q", s.Model(), DefaultModel)
	}
	s = NewSynthesizer("key", "aura-2-thalia-en")
	if s.Model() != "aura-2-thalia-en" {
		t.Errorf("model = %q, want override", s.Model())
	}
}

func TestStreamPCM48k_EmptyAPIKey(t *testing.T) {
	s := NewSynthesizer("", "")
	pcmCh, errCh := s.StreamPCM48k(context.Background(), "bonjour")

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error for missing api key")
		}
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
	}
	for range pcmCh {
		t.Error("unexpected audio for missing api key")
	}
}

func TestStreamPCM48k_EmptyText(t *testing.T) {
	s := NewSynthesizer("key", "")
	pcmCh, errCh := s.StreamPCM48k(context.Background(), "")

	for range pcmCh {
		t.Error("unexpected audio for empty text")
	}
	if err, ok := <-errCh; ok && err != nil {
		t.Errorf("unexpected error %v for empty text", err)
	}
}
