package frontend

import (
	"context"
	"strings"
	"time"

	"github.com/B-A-M-N/NERVA/internal/dispatch"
	"github.com/B-A-M-N/NERVA/internal/logging"
)

// ASR transcribes microphone audio. Implementations block until the speaker
// pauses for the silence window or the max duration passes.
type ASR interface {
	TranscribeUntilSilence(ctx context.Context, silence, max time.Duration) (string, error)
}

// TTS speaks text. blocking waits for playback to finish.
type TTS interface {
	Speak(ctx context.Context, text string, blocking bool) error
}

// WakeWord gates the voice loop. ListenOnce blocks until the wake word is
// heard or ctx expires.
type WakeWord interface {
	ListenOnce(ctx context.Context) error
}

// exitWords end the voice session.
var exitWords = map[string]bool{"exit": true, "quit": true, "goodbye": true}

// VoiceLoop runs the wake-word gated conversation loop. A nil wake word
// degrades to barge-in: every transcription round is live.
type VoiceLoop struct {
	dispatcher *dispatch.Dispatcher
	asr        ASR
	tts        TTS
	wake       WakeWord
	logger     logging.Logger

	silence time.Duration
	maxRec  time.Duration
}

// NewVoiceLoop wires the loop.
func NewVoiceLoop(dp *dispatch.Dispatcher, asr ASR, tts TTS, wake WakeWord, logger logging.Logger) *VoiceLoop {
	return &VoiceLoop{
		dispatcher: dp,
		asr:        asr,
		tts:        tts,
		wake:       wake,
		logger:     logging.OrNop(logger),
		silence:    3 * time.Second,
		maxRec:     30 * time.Second,
	}
}

// SetWindows overrides the silence and max recording windows. Zero values
// keep the defaults.
func (v *VoiceLoop) SetWindows(silence, max time.Duration) {
	if silence > 0 {
		v.silence = silence
	}
	if max > 0 {
		v.maxRec = max
	}
}

// Run loops until an exit word or ctx cancellation.
func (v *VoiceLoop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if v.wake != nil {
			if err := v.wake.ListenOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				v.logger.Warn("wake word listener failed, dropping to barge-in: %v", err)
				v.wake = nil
			}
		}

		utterance, err := v.asr.TranscribeUntilSilence(ctx, v.silence, v.maxRec)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			v.logger.Warn("transcription failed: %v", err)
			continue
		}
		utterance = strings.TrimSpace(utterance)
		if utterance == "" {
			continue
		}
		if exitWords[strings.ToLower(strings.Trim(utterance, ".,!?"))] {
			_ = v.tts.Speak(ctx, "Goodbye.", true)
			return nil
		}

		result := v.dispatcher.Dispatch(ctx, dispatch.TaskContext{
			Utterance: utterance,
			Source:    dispatch.SourceVoice,
		})
		v.speakResult(ctx, result)
	}
}

// speakResult reads the summary, then the answer when it says something the
// summary does not.
func (v *VoiceLoop) speakResult(ctx context.Context, result *dispatch.TaskResult) {
	if result.Summary != "" {
		_ = v.tts.Speak(ctx, result.Summary, true)
	}
	if result.Answer != "" && result.Answer != result.Summary &&
		!strings.Contains(result.Summary, result.Answer) {
		_ = v.tts.Speak(ctx, result.Answer, true)
	}
}
