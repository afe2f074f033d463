// Package session implements the per-connection streaming state machine:
// credit reservation, frame buffering, the periodic batch loop, partial
// delivery, and finalization. One Controller exists per websocket
// connection and lives only in memory.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tafahom/backend/internal/billing"
	"github.com/tafahom/backend/internal/config"
	"github.com/tafahom/backend/internal/translation"
)

// State of a session. Transitions: IDLE → RUNNING on start, RUNNING → IDLE
// on stop, any → CLOSED on disconnect or fatal error.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateClosed  State = "CLOSED"
)

// Output modes.
const (
	OutputText  = "text"
	OutputVoice = "voice"
)

// loopTick is how often the batch loop wakes to check deadlines and work.
const loopTick = 100 * time.Millisecond

// Translator is the slice of the pipeline orchestrator the streaming loop
// uses: recognition per batch, synthesis once at finalization.
type Translator interface {
	SignToText(ctx context.Context, frames []string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Emitter is the transport side of a session. SendJSON must be safe for
// concurrent use; Close must be idempotent and asynchronous.
type Emitter interface {
	SendJSON(v any) error
	Close(code int, reason string)
}

// Controller drives one streaming session.
type Controller struct {
	ID     string
	UserID string

	limits     config.StreamingConfig
	translator Translator
	wallet     *billing.Service
	records    translation.Store
	emit       Emitter
	log        *slog.Logger

	buffer *FrameBuffer

	mu            sync.Mutex
	state         State
	outputType    string
	recordID      int64
	requests      int
	partials      []string
	lastHeartbeat time.Time
	lastBatch     time.Time

	startedAt time.Time

	// dispatchMu serializes batch dispatch against finalization so stop
	// and shutdown wait for the in-flight batch instead of cancelling it.
	dispatchMu sync.Mutex

	done     chan struct{}
	loopDone chan struct{}
	shutOnce sync.Once
}

type Options struct {
	UserID     string
	Limits     config.StreamingConfig
	Translator Translator
	Wallet     *billing.Service
	Records    translation.Store
	Emitter    Emitter
	Logger     *slog.Logger
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	now := time.Now()
	c := &Controller{
		ID:            uuid.NewString(),
		UserID:        opts.UserID,
		limits:        opts.Limits,
		translator:    opts.Translator,
		wallet:        opts.Wallet,
		records:       opts.Records,
		emit:          opts.Emitter,
		buffer:        NewFrameBuffer(opts.Limits.MaxBufferSize),
		state:         StateIdle,
		lastHeartbeat: now,
		startedAt:     now,
		done:          make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
	c.log = opts.Logger.With("session_id", c.ID, "user_id", c.UserID)
	return c
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run is the batch loop. It owns every dispatch for the session, so
// partial results arrive in dispatch order and at most one batch is in
// flight at any time. Run exits when Shutdown is called or a liveness
// limit trips.
func (c *Controller) Run() {
	defer close(c.loopDone)

	metricActiveSessions.Inc()
	defer metricActiveSessions.Dec()

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("batch loop crashed", "panic", r)
			c.send(Error("Streaming service crashed"))
			c.closeWith(CloseInternalError, "internal error")
		}
	}()

	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		now := time.Now()

		if now.Sub(c.startedAt) > c.limits.MaxConnectionTime() {
			c.closeWith(CloseLifetimeExceeded, "connection lifetime exceeded")
			return
		}

		c.mu.Lock()
		heartbeat := c.lastHeartbeat
		running := c.state == StateRunning
		lastBatch := c.lastBatch
		c.mu.Unlock()

		if now.Sub(heartbeat) > c.limits.HeartbeatTimeout() {
			c.closeWith(CloseHeartbeatTimeout, "heartbeat timeout")
			return
		}
		if !running {
			continue
		}
		if now.Sub(lastBatch) < c.limits.SendInterval() {
			continue
		}

		frames := c.buffer.DrainTail(c.limits.MaxBatchFrames)
		if frames == nil {
			continue
		}
		if len(frames) > c.limits.MaxFramesPerRequest {
			c.send(Error("Too many frames"))
			continue
		}

		c.dispatchBatch(frames)

		c.mu.Lock()
		c.lastBatch = time.Now()
		c.mu.Unlock()
	}
}

// OnFrame buffers one binary frame. Frames arriving outside a running
// translation are discarded.
func (c *Controller) OnFrame(frame []byte) {
	c.mu.Lock()
	running := c.state == StateRunning
	c.mu.Unlock()
	if !running {
		return
	}

	if !c.buffer.Append(frame) {
		metricFramesDropped.Inc()
	}
}

// OnPing records client liveness and answers with a pong.
func (c *Controller) OnPing() {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
	c.send(Pong())
}

// StartTranslation moves the session from IDLE to RUNNING: enforces the
// per-session request quota, reserves one credit, creates the translation
// record, and resets the buffers. Start while already RUNNING is ignored.
func (c *Controller) StartTranslation(ctx context.Context, outputType string) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	if c.requests >= c.limits.MaxRequestsPerSession {
		c.mu.Unlock()
		c.send(Error("Session quota exceeded"))
		c.closeWith(CloseQuotaExceeded, "session quota exceeded")
		return
	}
	c.mu.Unlock()

	if outputType != OutputVoice {
		outputType = OutputText
	}

	ok, err := c.wallet.CanConsume(ctx, c.UserID, 1)
	if err != nil {
		c.log.Error("credit check failed", "error", err)
		c.send(Error("Translation error"))
		return
	}
	if !ok {
		c.send(Error("Not enough credits"))
		return
	}

	if err := c.wallet.Consume(ctx, c.UserID, 1, "Translation request"); err != nil {
		if errors.Is(err, billing.ErrInsufficientCredits) {
			c.send(Error("Not enough credits"))
			return
		}
		c.log.Error("credit consume failed", "error", err)
		c.send(Error("Translation error"))
		return
	}

	// The credit is spent from here on, even if record creation or the
	// pipeline later fail: the session keeps the right to stream until it
	// stops or closes, and nothing is refunded.
	rec := &translation.Record{
		UserID:         c.UserID,
		Direction:      translation.DirectionFromSign,
		InputType:      "video",
		OutputType:     outputType,
		Status:         translation.StatusProcessing,
		SourceLanguage: "ase",
		ProcessingMode: translation.ModeStreaming,
	}
	id, err := c.records.Create(ctx, rec)
	if err != nil {
		c.log.Error("translation record create failed", "error", err)
		c.send(Error("Translation error"))
		return
	}

	c.mu.Lock()
	c.state = StateRunning
	c.outputType = outputType
	c.recordID = id
	c.requests++
	c.partials = nil
	c.lastBatch = time.Now()
	c.mu.Unlock()

	c.buffer.Clear()

	metricTranslationsStarted.Inc()
	c.log.Info("translation started", "translation_id", id, "output_type", outputType)
	c.send(StatusProcessing(id))
}

// StopTranslation moves the session back to IDLE and finalizes the active
// translation. An in-flight batch dispatch is allowed to complete first;
// new dispatches are prevented immediately. Stop while IDLE is ignored.
func (c *Controller) StopTranslation(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.buffer.Clear()
	c.finalize(ctx)

	c.log.Info("translation stopped", "reason", reason)
	c.send(StatusStopped())
}

// Shutdown tears the session down on disconnect or fatal error. The batch
// loop is signalled and awaited long enough for the current batch to
// complete or hit its timeout; a running translation is still finalized.
func (c *Controller) Shutdown(ctx context.Context) {
	c.shutOnce.Do(func() {
		close(c.done)

		select {
		case <-c.loopDone:
		case <-time.After(c.limits.PipelineTimeout() + time.Second):
			c.log.Warn("batch loop did not exit before grace period")
		}

		c.mu.Lock()
		wasRunning := c.state == StateRunning
		c.state = StateClosed
		c.mu.Unlock()

		if wasRunning {
			c.dispatchMu.Lock()
			c.finalize(ctx)
			c.dispatchMu.Unlock()
		}

		c.buffer.Clear()
		c.log.Info("session closed")
	})
}

// dispatchBatch encodes the frames and runs the sign→text pipeline under
// the batch deadline. Voice synthesis is deferred to finalization; the
// streaming path always transcribes to text. Transient failures never tear
// the session down.
func (c *Controller) dispatchBatch(frames [][]byte) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	// Stop may have raced in after the drain; do not dispatch outside
	// RUNNING.
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	encoded := make([]string, len(frames))
	for i, f := range frames {
		encoded[i] = base64.StdEncoding.EncodeToString(f)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.limits.PipelineTimeout())
	defer cancel()

	start := time.Now()
	text, err := c.translator.SignToText(ctx, encoded)
	metricBatchDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metricBatchesDispatched.WithLabelValues("ok").Inc()
		if text == "" {
			return
		}
		metricPartialResults.Inc()
		c.mu.Lock()
		c.partials = append(c.partials, text)
		c.mu.Unlock()
		c.send(PartialResult(text))

	case errors.Is(err, context.DeadlineExceeded):
		metricBatchesDispatched.WithLabelValues("timeout").Inc()
		c.log.Warn("batch dispatch timed out", "frames", len(frames))
		c.send(Warning("Poor connection, retrying..."))

	default:
		metricBatchesDispatched.WithLabelValues("error").Inc()
		c.log.Error("batch dispatch failed", "frames", len(frames), "error", err)
		c.send(Error("AI service temporary error"))
	}
}

// finalize completes the active translation record with the joined partial
// text and, in voice mode, synthesizes the final audio. Callers hold
// dispatchMu.
func (c *Controller) finalize(ctx context.Context) {
	c.mu.Lock()
	id := c.recordID
	text := strings.Join(c.partials, " ")
	output := c.outputType
	c.partials = nil
	c.recordID = 0
	c.mu.Unlock()

	if id == 0 {
		return
	}

	if err := c.records.Complete(ctx, id, text, ""); err != nil {
		c.log.Error("translation record complete failed", "translation_id", id, "error", err)
	}

	if output != OutputVoice {
		return
	}

	// Voice clients always get a terminal final_result, even when nothing
	// was recognized; synthesis is skipped for empty text.
	if text == "" {
		c.send(FinalResult("", ""))
		return
	}
	audio, err := c.translator.Synthesize(ctx, text)
	if err != nil {
		c.log.Warn("final synthesis failed", "translation_id", id, "error", err)
		c.send(FinalResult(text, ""))
		return
	}
	c.send(FinalResult(text, base64.StdEncoding.EncodeToString(audio)))
}

func (c *Controller) send(v any) {
	if err := c.emit.SendJSON(v); err != nil {
		c.log.Warn("send failed", "error", err)
	}
}

func (c *Controller) closeWith(code int, reason string) {
	metricSessionCloses.WithLabelValues(strconv.Itoa(code)).Inc()
	c.emit.Close(code, reason)
}
