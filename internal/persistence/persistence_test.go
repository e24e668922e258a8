package persistence

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/config"
)

func sampleData() ConversationData {
	return ConversationData{
		VoiceAgentName:   "Camille",
		Transcript:       "[2025-10-30T14:23:45] USER: Bonjour, j'ai très mal à la tête",
		ConversationDate: "2025-10-30",
		PatientName:      "Stéphane",
		TotalTurns:       Int(3),
		UserTurns:        Int(2),
		AgentTurns:       Int(1),
	}
}

func TestMetadata_OmitsUnsetFields(t *testing.T) {
	data := ConversationData{
		VoiceAgentName:   "Camille",
		Transcript:       "t",
		ConversationDate: "2025-10-30",
	}
	m := data.metadata()
	for _, key := range []string{"patient_name", "phone_number", "birth_date", "reason",
		"appointment_date", "appointment_time", "audio_recording_url", "total_turns", "test_mode"} {
		if _, ok := m[key]; ok {
			t.Fatalf("expected %q omitted, got %v", key, m[key])
		}
	}
	if m["action"] != "store_conversation" {
		t.Fatalf("missing action field: %v", m)
	}
}

func TestEncodeJSON_PreservesUTF8(t *testing.T) {
	got, err := encodeJSON(sampleData().metadata(), false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(string(got), `\u`) {
		t.Fatalf("expected literal UTF-8, found escapes: %s", got)
	}
	if !strings.Contains(string(got), "Stéphane") || !strings.Contains(string(got), "très mal à la tête") {
		t.Fatalf("accented text missing or mangled: %s", got)
	}
}

func TestWebhookStore_MetadataOnly(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/store_conversation" {
			t.Errorf("path: %q", r.URL.Path)
		}
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status": "stored"}`))
	}))
	defer srv.Close()

	s := NewWebhookStore(srv.URL, "tok", time.Second)
	defer s.Close()
	if !s.StoreConversation(context.Background(), sampleData(), nil) {
		t.Fatalf("expected success")
	}
	if gotContentType != "application/json; charset=utf-8" {
		t.Fatalf("content type: %q", gotContentType)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth: %q", gotAuth)
	}
	if strings.Contains(string(gotBody), `\u`) {
		t.Fatalf("escaped unicode on the wire: %s", gotBody)
	}
	var m map[string]any
	if err := json.Unmarshal(gotBody, &m); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if _, ok := m["phone_number"]; ok {
		t.Fatalf("unset field sent: %v", m)
	}
	if m["total_turns"] != float64(3) {
		t.Fatalf("total_turns: %v", m["total_turns"])
	}
}

func TestWebhookStore_WithAudioMultipart(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	var metadataJSON []byte
	var audioBytes []byte
	var audioFilename, audioContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
			t.Errorf("expected multipart, got %q", r.Header.Get("Content-Type"))
			return
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "metadata":
				metadataJSON = data
			case "audio":
				audioBytes = data
				audioFilename = part.FileName()
				audioContentType = part.Header.Get("Content-Type")
			}
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := NewWebhookStore(srv.URL, "", time.Second)
	defer s.Close()
	if !s.StoreConversation(context.Background(), sampleData(), audio) {
		t.Fatalf("expected success")
	}
	if string(audioBytes) != string(audio) {
		t.Fatalf("audio bytes mismatch")
	}
	if audioFilename != "recording.mp3" || audioContentType != "audio/mpeg" {
		t.Fatalf("audio part: filename=%q type=%q", audioFilename, audioContentType)
	}
	if strings.Contains(string(metadataJSON), `\u`) {
		t.Fatalf("metadata escaped: %s", metadataJSON)
	}
	var m map[string]any
	if err := json.Unmarshal(metadataJSON, &m); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
}

func TestWebhookStore_FailuresReturnFalse(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http_500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }},
		{"non_json_body", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			s := NewWebhookStore(srv.URL, "", time.Second)
			defer s.Close()
			if s.StoreConversation(context.Background(), sampleData(), nil) {
				t.Fatalf("expected false")
			}
		})
	}
}

func TestWebhookStore_ConnectionErrorReturnsFalse(t *testing.T) {
	s := NewWebhookStore("http://127.0.0.1:1", "", 200*time.Millisecond)
	defer s.Close()
	if s.StoreConversation(context.Background(), sampleData(), nil) {
		t.Fatalf("expected false on connection error")
	}
}

func TestFileStore_WritesJSONAndAudio(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "conversations")
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	if !s.StoreConversation(context.Background(), sampleData(), []byte("mp3")) {
		t.Fatalf("expected success")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var jsonPath, mp3Path string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "conversation_") {
			t.Fatalf("unexpected file: %s", name)
		}
		switch filepath.Ext(name) {
		case ".json":
			jsonPath = filepath.Join(dir, name)
		case ".mp3":
			mp3Path = filepath.Join(dir, name)
		}
	}
	if jsonPath == "" || mp3Path == "" {
		t.Fatalf("expected json and mp3, got %v", entries)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if strings.Contains(string(raw), `\u`) {
		t.Fatalf("escaped unicode in file: %s", raw)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("file not JSON: %v", err)
	}
	if m["audio_file_local"] != mp3Path {
		t.Fatalf("audio_file_local: %v", m["audio_file_local"])
	}
	if _, ok := m["phone_number"]; ok {
		t.Fatalf("unset field in file payload: %v", m)
	}
}

func TestFileStore_NoAudio(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !s.StoreConversation(context.Background(), sampleData(), nil) {
		t.Fatalf("expected success")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".json" {
		t.Fatalf("expected single json file, got %v", entries)
	}
}

func TestNew_SelectsImplementation(t *testing.T) {
	fileCfg := config.Config{TestMode: true, ConversationDir: t.TempDir()}
	s, err := New(fileCfg)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Fatalf("expected FileStore, got %T", s)
	}

	webhookCfg := config.Config{WebhookBaseURL: "https://hooks.example.com"}
	s, err = New(webhookCfg)
	if err != nil {
		t.Fatalf("webhook store: %v", err)
	}
	if _, ok := s.(*WebhookStore); !ok {
		t.Fatalf("expected WebhookStore, got %T", s)
	}

	if _, err := New(config.Config{}); err == nil {
		t.Fatalf("expected error without webhook URL or test mode")
	}
}
