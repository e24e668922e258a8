// Package tts synthesizes agent speech through Deepgram's streaming Speak API.
package tts

import (
	"context"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultModel is the French voice used when none is configured.
const DefaultModel = "aura-2-ophelie-fr"

// Synthesizer converts text to 48kHz linear16 PCM over a Deepgram WebSocket.
type Synthesizer struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
}

func NewSynthesizer(apiKey, model string) *Synthesizer {
	if model == "" {
		model = DefaultModel
	}
	return &Synthesizer{apiKey: apiKey, model: model, sampleRate: 48000, encoding: "linear16"}
}

// Model returns the configured voice model.
func (s *Synthesizer) Model() string { return s.model }

// StreamPCM48k synthesizes text and streams PCM frames until Deepgram goes
// idle or ctx is cancelled. Both channels are closed when synthesis ends.
func (s *Synthesizer) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)

	go func() {
		defer close(pcmCh)
		defer close(errCh)

		if s.apiKey == "" {
			errCh <- errors.New("deepgram api key missing")
			return
		}
		if text == "" {
			return
		}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      s.model,
			Encoding:   s.encoding,
			SampleRate: s.sampleRate,
		}

		var lastRecvUnix int64
		var seenAudio int32

		cb := &speakCallback{onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
			atomic.StoreInt32(&seenAudio, 1)
			b := make([]byte, len(data))
			copy(b, data)
			select {
			case pcmCh <- b:
			default:
			}
			return nil
		}}

		dg, err := speak.NewWSUsingCallback(ctx, s.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- errors.Wrap(err, "create speak client")
			return
		}

		stopped := false
		stopClient := func() {
			if !stopped {
				stopped = true
				dg.Stop()
			}
		}
		defer stopClient()

		if ok := dg.Connect(); !ok {
			errCh <- errors.New("deepgram speak connect failed")
			return
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				stopClient()
			case <-done:
			}
		}()

		if err := dg.SpeakWithText(text); err != nil {
			errCh <- errors.Wrap(err, "speak text")
			close(done)
			return
		}
		if err := dg.Flush(); err != nil {
			log.Warn().Err(err).Msg("tts flush error")
		}

		// Deepgram does not signal end-of-stream for a flushed utterance, so
		// treat a quiet wire as completion.
		idleWindow := 400 * time.Millisecond
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.Now().Add(12 * time.Second)
		for {
			select {
			case <-ctx.Done():
				stopClient()
				close(done)
				return
			case <-ticker.C:
				if atomic.LoadInt32(&seenAudio) == 1 {
					last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
					if !last.IsZero() && time.Since(last) > idleWindow {
						stopClient()
						close(done)
						return
					}
				}
				if time.Now().After(deadline) {
					stopClient()
					close(done)
					return
				}
			}
		}
	}()

	return pcmCh, errCh
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
