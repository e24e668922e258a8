package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/agent"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/config"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/httpserver"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/llm"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/persistence"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/prompt"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/recorder"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/scheduling"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/stt"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/tts"
	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/webhook"
)

const greeting = "Bonjour, cabinet du docteur Fillion, Camille à l'appareil."

func main() {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000000"
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	cfg := config.Load()

	if _, err := prompt.Load(cfg.PromptPath); err != nil {
		log.Warn().Err(err).Str("path", cfg.PromptPath).Msg("system prompt not available")
	}

	store, err := persistence.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("persistence setup failed")
	}

	rec := recorder.New(cfg.AgentName)

	whClient := webhook.NewClient(cfg.WebhookBaseURL, cfg.WebhookToken)
	tools := scheduling.NewTools(whClient, cfg.GenerationTimeout)
	defer tools.Close()

	chat := agent.NewWebhookChat(llm.NewWebhookLLM(cfg.GenerationWebhookURL, cfg.WebhookToken, cfg.GenerationTimeout))
	transcriber := stt.NewService(cfg.DeepgramAPIKey, "fr")
	synth := tts.NewSynthesizer(cfg.DeepgramAPIKey, cfg.TTSModel)

	sess := agent.NewSession(transcriber, chat, synth, nil, rec, store, agent.Options{
		LLMModel: "n8n-workflow",
		TTSVoice: synth.Model(),
		TestMode: cfg.TestMode,
	})

	srv := httpserver.New(cfg.WebhookToken, cfg.AgentName)
	srv.RegisterTool("check_availability", scheduling.NewCheckAvailabilityHandler(tools))
	srv.RegisterTool("book_appointment", scheduling.NewBookAppointmentHandler(tools))
	srv.RegisterTool("log_appointment_details", scheduling.NewLogAppointmentHandler(tools, rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Emergency redirect ends the call once the fixed line has been spoken.
	sess.OnEmergency(func() {
		log.Warn().Msg("emergency redirect delivered, ending call")
		cancel()
	})

	stop, err := sess.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("session start failed")
	}
	srv.CallStarted()

	sess.Greet(ctx, greeting)
	log.Info().Str("agent", cfg.AgentName).Msg("agent ready and listening")

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Msg("http server listening")
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	stop()
	srv.CallEnded()

	persistCtx, persistCancel := context.WithTimeout(context.Background(), 2*cfg.PersistenceTimeout)
	defer persistCancel()
	sess.Close(persistCtx)
	log.Info().Msg("agent stopped")
}
