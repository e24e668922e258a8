// Package barge detects the caller speaking over the agent so playback can be
// interrupted quickly. It fuses two cues per 10ms mic frame: voice energy
// above the current synthesis reference, and transcript growth carrying new
// content words. A vote window with hysteresis keeps single noisy frames from
// triggering.
package barge

import (
	"encoding/binary"
	"math"
	"strings"
	"sync"
)

// Config holds the fusion thresholds.
type Config struct {
	SampleRate      int     // mic rate; 10ms frames are cut at this rate
	FuseWinMs       int     // voting window for the on decision
	HysteresisOffMs int     // quiet window that clears accumulated votes
	PreRollMs       int     // mic audio replayed to the transcriber on trigger
	VADThreshold    float64 // RMS floor below which a frame is never speech
	MinNewTokens    int     // content words of transcript growth counting as a cue
}

// DefaultConfig matches a 16kHz telephone-grade mic path.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		FuseWinMs:       150,
		HysteresisOffMs: 200,
		PreRollMs:       220,
		VADThreshold:    300.0,
		MinNewTokens:    2,
	}
}

// Engine is fed mic audio, synthesis reference audio and transcript partials
// while the agent speaks; it fires onTrigger with the pre-roll audio when the
// caller barges in.
type Engine struct {
	cfg       Config
	onTrigger func(preRoll []byte)

	mu         sync.Mutex
	speaking   bool
	votes      []bool
	quietVotes []bool

	refEnergy  float64 // smoothed RMS of the synthesis reference
	preRoll    *pcmRing
	lastTokens int
}

// NewEngine creates an engine. onTrigger runs on the mic feed goroutine and
// must return quickly.
func NewEngine(cfg Config, onTrigger func(preRoll []byte)) *Engine {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.VADThreshold == 0 {
		cfg.VADThreshold = 300.0
	}
	if cfg.MinNewTokens == 0 {
		cfg.MinNewTokens = 2
	}
	return &Engine{
		cfg:       cfg,
		onTrigger: onTrigger,
		preRoll:   newPCMRing(cfg.PreRollMs, cfg.SampleRate),
	}
}

// SetSpeaking toggles detection; cues are only counted while the agent speaks.
func (e *Engine) SetSpeaking(on bool) {
	e.mu.Lock()
	e.speaking = on
	if !on {
		e.votes = e.votes[:0]
		e.quietVotes = e.quietVotes[:0]
	}
	e.mu.Unlock()
}

// Reset clears vote and transcript state between turns.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.votes = e.votes[:0]
	e.quietVotes = e.quietVotes[:0]
	e.lastTokens = 0
	e.mu.Unlock()
}

// FeedMic16k accepts arbitrary-length PCM16LE mic audio and processes it as
// 10ms frames.
func (e *Engine) FeedMic16k(pcm []byte) {
	samples := e.cfg.SampleRate / 100
	for off := 0; off+samples*2 <= len(pcm); off += samples * 2 {
		e.onMicFrame(pcm[off : off+samples*2])
	}
}

// FeedTTSRef48k accepts the 48kHz synthesis output so mic energy can be
// compared against what the speaker is currently playing.
func (e *Engine) FeedTTSRef48k(pcm []byte) {
	rms := frameRMS(pcm)
	e.mu.Lock()
	// exponential smoothing; the reference only needs to track loudness trend
	e.refEnergy = 0.8*e.refEnergy + 0.2*rms
	e.mu.Unlock()
}

// NotifyPartial supplies the running transcript. Growth by MinNewTokens
// content words since the last call counts as a barge cue.
func (e *Engine) NotifyPartial(text string) {
	tokens := 0
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if !isStopwordFR(w) {
			tokens++
		}
	}
	e.mu.Lock()
	grown := tokens-e.lastTokens >= e.cfg.MinNewTokens
	e.lastTokens = tokens
	speaking := e.speaking
	e.mu.Unlock()
	if grown && speaking {
		e.pushVote(true)
	}
}

func (e *Engine) onMicFrame(frame []byte) {
	e.preRoll.Write(frame)

	rms := frameRMS(frame)
	e.mu.Lock()
	speaking := e.speaking
	ref := e.refEnergy
	e.mu.Unlock()
	if !speaking {
		return
	}

	// Speech must clear both the absolute floor and the echo of our own voice.
	isVoice := rms >= e.cfg.VADThreshold && rms > 0.5*ref
	e.pushVote(isVoice)
}

// pushVote records one 10ms observation and fires the trigger when two thirds
// of the fuse window agree.
func (e *Engine) pushVote(voice bool) {
	e.mu.Lock()
	maxVotes := e.cfg.FuseWinMs/10 + 1
	e.votes = appendBounded(e.votes, voice, maxVotes)
	e.quietVotes = appendBounded(e.quietVotes, !voice, e.cfg.HysteresisOffMs/10+1)

	if ratio(e.quietVotes) >= 2.0/3.0 {
		e.votes = e.votes[:0]
	}
	fire := len(e.votes) >= maxVotes/2 && ratio(e.votes) >= 2.0/3.0
	if fire {
		e.votes = e.votes[:0]
		e.quietVotes = e.quietVotes[:0]
	}
	e.mu.Unlock()

	if fire && e.onTrigger != nil {
		e.onTrigger(e.preRoll.Snapshot())
	}
}

func appendBounded(votes []bool, v bool, max int) []bool {
	votes = append(votes, v)
	if len(votes) > max {
		votes = votes[len(votes)-max:]
	}
	return votes
}

func ratio(votes []bool) float64 {
	if len(votes) == 0 {
		return 0
	}
	n := 0
	for _, v := range votes {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(votes))
}

func frameRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// pcmRing keeps the most recent PCM bytes for pre-roll replay.
type pcmRing struct {
	mu       sync.Mutex
	buf      []byte
	writePos int
	full     bool
}

func newPCMRing(capacityMs, sampleRate int) *pcmRing {
	n := capacityMs * sampleRate / 1000 * 2
	if n < sampleRate/5 {
		n = sampleRate / 5
	}
	return &pcmRing{buf: make([]byte, n)}
}

func (r *pcmRing) Write(pcm []byte) {
	r.mu.Lock()
	for _, b := range pcm {
		r.buf[r.writePos] = b
		r.writePos++
		if r.writePos == len(r.buf) {
			r.writePos = 0
			r.full = true
		}
	}
	r.mu.Unlock()
}

// Snapshot returns the buffered audio oldest-first.
func (r *pcmRing) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]byte, r.writePos)
		copy(out, r.buf[:r.writePos])
		return out
	}
	out := make([]byte, len(r.buf))
	copy(out, r.buf[r.writePos:])
	copy(out[len(r.buf)-r.writePos:], r.buf[:r.writePos])
	return out
}

func isStopwordFR(s string) bool {
	switch s {
	case "le", "la", "les", "un", "une", "des", "de", "du", "et", "ou",
		"à", "au", "aux", "en", "sur", "pour", "est", "c'est", "ce", "ça",
		"je", "tu", "il", "elle", "on", "vous", "euh", "hum", "ben":
		return true
	}
	return false
}
