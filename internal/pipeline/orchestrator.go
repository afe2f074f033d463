// Package pipeline composes the AI adapter calls into the four translation
// pipelines: sign→text, sign→voice, text→sign, voice→sign. The
// orchestrator is stateless and safe for concurrent use from any number of
// sessions.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tafahom/backend/internal/aiclient"
	"github.com/tafahom/backend/internal/glossary"
)

// Error wraps any pipeline failure with the name of the pipeline that
// produced it.
type Error struct {
	Pipeline string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s pipeline failed: %v", e.Pipeline, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// VideoAssembler renders a resolved gloss sequence into a video and
// returns its public URL. Implemented by internal/videogen.
type VideoAssembler interface {
	Assemble(ctx context.Context, tokens []string) (string, error)
}

// Orchestrator holds the five adapters and the glossary. Adapters are
// wired explicitly at startup, never ambient.
type Orchestrator struct {
	vision      *aiclient.VisionClient
	textToGloss *aiclient.TextToGlossClient
	glossToText *aiclient.GlossToTextClient
	stt         *aiclient.STTClient
	tts         *aiclient.TTSClient

	glossary *glossary.Glossary
	video    VideoAssembler

	timeout time.Duration // per adapter call
	log     *slog.Logger
}

type Options struct {
	Vision      *aiclient.VisionClient
	TextToGloss *aiclient.TextToGlossClient
	GlossToText *aiclient.GlossToTextClient
	STT         *aiclient.STTClient
	TTS         *aiclient.TTSClient
	Glossary    *glossary.Glossary
	Video       VideoAssembler
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		vision:      opts.Vision,
		textToGloss: opts.TextToGloss,
		glossToText: opts.GlossToText,
		stt:         opts.STT,
		tts:         opts.TTS,
		glossary:    opts.Glossary,
		video:       opts.Video,
		timeout:     opts.Timeout,
		log:         opts.Logger,
	}
}

// SignToVoiceResult carries the transcription and its synthesized audio.
type SignToVoiceResult struct {
	Text  string
	Audio []byte
}

// TextToSignResult carries the resolved gloss and the assembled video URL.
type TextToSignResult struct {
	Gloss    []string
	VideoURL string
}

// VoiceToSignResult additionally carries the STT transcription.
type VoiceToSignResult struct {
	Text     string
	Gloss    []string
	VideoURL string
}

// SignToText recognizes a batch of base64-encoded frames and renders the
// recognized gloss into natural language.
func (o *Orchestrator) SignToText(ctx context.Context, frames []string) (string, error) {
	const name = "sign_to_text"
	if len(frames) == 0 {
		return "", &Error{name, fmt.Errorf("empty frame batch")}
	}

	requestID := uuid.NewString()
	start := time.Now()

	cv, err := withTimeout(ctx, o.timeout, func(ctx context.Context) (*aiclient.VisionResult, error) {
		return o.vision.SignToGloss(ctx, frames)
	})
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return "", &Error{name, err}
	}

	text := strings.TrimSpace(cv.Text)
	if text == "" && len(cv.Gloss) > 0 {
		text, err = withTimeout(ctx, o.timeout, func(ctx context.Context) (string, error) {
			return o.glossToText.GlossToText(ctx, cv.Gloss)
		})
		if err != nil {
			o.logFailure(name, requestID, start, err)
			return "", &Error{name, err}
		}
		text = strings.TrimSpace(text)
	}

	if text == "" {
		err := fmt.Errorf("cv returned empty output")
		o.logFailure(name, requestID, start, err)
		return "", &Error{name, err}
	}

	o.logSuccess(name, requestID, start, "frames", len(frames))
	return text, nil
}

// SignToVoice runs sign→text and synthesizes the result.
func (o *Orchestrator) SignToVoice(ctx context.Context, frames []string) (*SignToVoiceResult, error) {
	const name = "sign_to_voice"
	requestID := uuid.NewString()
	start := time.Now()

	text, err := o.SignToText(ctx, frames)
	if err != nil {
		return nil, &Error{name, err}
	}

	audio, err := withTimeout(ctx, o.timeout, func(ctx context.Context) ([]byte, error) {
		return o.tts.TextToSpeech(ctx, text, "")
	})
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}

	o.logSuccess(name, requestID, start, "audio_bytes", len(audio))
	return &SignToVoiceResult{Text: text, Audio: audio}, nil
}

// TextToSign converts natural language into a gloss sequence and assembles
// the sign video.
func (o *Orchestrator) TextToSign(ctx context.Context, text string) (*TextToSignResult, error) {
	const name = "text_to_sign"
	if strings.TrimSpace(text) == "" {
		return nil, &Error{name, fmt.Errorf("empty input text")}
	}

	requestID := uuid.NewString()
	start := time.Now()

	nlp, err := withTimeout(ctx, o.timeout, func(ctx context.Context) (*aiclient.NLPOutput, error) {
		return o.textToGloss.TextToGloss(ctx, text)
	})
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}
	if nlp.Empty() {
		err := fmt.Errorf("nlp returned empty output")
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}

	gloss, err := resolveGloss(nlp, o.glossary)
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}

	videoURL, err := o.video.Assemble(ctx, gloss)
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}

	o.logSuccess(name, requestID, start, "gloss", strings.Join(gloss, " "))
	return &TextToSignResult{Gloss: gloss, VideoURL: videoURL}, nil
}

// VoiceToSign transcribes a WAV upload and runs the text→sign path.
func (o *Orchestrator) VoiceToSign(ctx context.Context, wav io.ReadSeeker, filename string) (*VoiceToSignResult, error) {
	const name = "voice_to_sign"
	requestID := uuid.NewString()
	start := time.Now()

	if err := ensureWAV(wav, filename); err != nil {
		return nil, &Error{name, err}
	}

	text, err := withTimeout(ctx, o.timeout, func(ctx context.Context) (string, error) {
		return o.stt.SpeechToText(ctx, wav, filename, "", "")
	})
	if err != nil {
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("stt returned empty text")
		o.logFailure(name, requestID, start, err)
		return nil, &Error{name, err}
	}

	sign, err := o.TextToSign(ctx, text)
	if err != nil {
		return nil, &Error{name, err}
	}

	o.logSuccess(name, requestID, start, "text", text)
	return &VoiceToSignResult{Text: text, Gloss: sign.Gloss, VideoURL: sign.VideoURL}, nil
}

// Synthesize renders text into audio. Used once at session finalization
// when the output mode is voice.
func (o *Orchestrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}
	return withTimeout(ctx, o.timeout, func(ctx context.Context) ([]byte, error) {
		return o.tts.TextToSpeech(ctx, text, "")
	})
}

// withTimeout bounds a single adapter call by the shared AI timeout.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (o *Orchestrator) logSuccess(pipeline, requestID string, start time.Time, args ...any) {
	all := append([]any{
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	}, args...)
	o.log.Info(pipeline+"_success", all...)
}

func (o *Orchestrator) logFailure(pipeline, requestID string, start time.Time, err error) {
	o.log.Error(pipeline+"_failed",
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
}
