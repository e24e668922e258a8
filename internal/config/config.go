package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration. It is assembled once at startup and
// passed into component constructors; nothing below this package reads the
// process environment.
type Config struct {
	HTTPAddress string

	// Workflow webhooks. Scheduling and persistence endpoints hang off this base URL.
	WebhookBaseURL string
	WebhookToken   string

	// Generation webhook for the LLM adapter. A single absolute URL, not suffixed.
	GenerationWebhookURL string
	GenerationTimeout    time.Duration

	PersistenceTimeout time.Duration

	// Test mode routes persistence to local files instead of the webhook.
	TestMode        bool
	ConversationDir string

	// Voice pipeline credentials.
	DeepgramAPIKey string
	TTSModel       string

	// Optional Supabase persistence backend.
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string

	AgentName  string
	PromptPath string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	baseURL := os.Getenv("WEBHOOK_BASE_URL")
	if baseURL == "" {
		log.Warn().Msg("WEBHOOK_BASE_URL not set - scheduling tools and remote persistence will not work")
	}

	genURL := os.Getenv("GENERATION_WEBHOOK_URL")
	if genURL == "" {
		log.Warn().Msg("GENERATION_WEBHOOK_URL not set - LLM generation will not work")
	}

	dgKey := os.Getenv("DEEPGRAM_API_KEY")
	if dgKey == "" {
		log.Warn().Msg("DEEPGRAM_API_KEY not set - transcription and TTS will not work")
	}

	ttsModel := os.Getenv("TTS_MODEL")
	if ttsModel == "" {
		ttsModel = "aura-2-ophelie-fr"
	}

	agentName := os.Getenv("AGENT_NAME")
	if agentName == "" {
		agentName = "Camille"
	}

	convDir := os.Getenv("CONVERSATION_DIR")
	if convDir == "" {
		convDir = "logs/conversations"
	}

	promptPath := os.Getenv("PROMPT_PATH")
	if promptPath == "" {
		promptPath = "prompts/camille.md"
	}

	cfg := Config{
		HTTPAddress:            addr,
		WebhookBaseURL:         baseURL,
		WebhookToken:           os.Getenv("WEBHOOK_TOKEN"),
		GenerationWebhookURL:   genURL,
		GenerationTimeout:      durationEnv("GENERATION_TIMEOUT", 8*time.Second),
		PersistenceTimeout:     durationEnv("PERSISTENCE_TIMEOUT", 10*time.Second),
		TestMode:               boolEnv("TEST_MODE"),
		ConversationDir:        convDir,
		DeepgramAPIKey:         dgKey,
		TTSModel:               ttsModel,
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         os.Getenv("SUPABASE_BUCKET"),
		AgentName:              agentName,
		PromptPath:             promptPath,
	}

	log.Info().
		Str("http_address", cfg.HTTPAddress).
		Bool("test_mode", cfg.TestMode).
		Bool("token_configured", cfg.WebhookToken != "").
		Msg("config loaded")
	return cfg
}

func boolEnv(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
