package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tafahom/backend/internal/billing"
	"github.com/tafahom/backend/internal/config"
	"github.com/tafahom/backend/internal/translation"
)

type fakeEmitter struct {
	mu        sync.Mutex
	sent      []any
	closeCode int
	closed    bool
}

func (e *fakeEmitter) SendJSON(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, v)
	return nil
}

func (e *fakeEmitter) Close(code int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.closeCode = code
	}
}

func (e *fakeEmitter) messages() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *fakeEmitter) closedWith() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeCode, e.closed
}

func (e *fakeEmitter) partials() []string {
	var out []string
	for _, m := range e.messages() {
		if p, ok := m.(PartialResultMessage); ok {
			out = append(out, p.Text)
		}
	}
	return out
}

func (e *fakeEmitter) errorMessages() []string {
	var out []string
	for _, m := range e.messages() {
		if em, ok := m.(ErrorMessage); ok {
			out = append(out, em.Message)
		}
	}
	return out
}

type fakeTranslator struct {
	mu      sync.Mutex
	batches [][]string
	times   []time.Time
	results []string
	err     error
	block   bool

	audio      []byte
	synthErr   error
	synthCalls int
}

func (f *fakeTranslator) SignToText(ctx context.Context, frames []string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, frames)
	f.times = append(f.times, time.Now())
	if f.err != nil {
		return "", f.err
	}
	if len(f.results) == 0 {
		return "", nil
	}
	text := f.results[0]
	f.results = f.results[1:]
	return text, nil
}

func (f *fakeTranslator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.synthCalls++
	f.mu.Unlock()
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.audio, nil
}

func (f *fakeTranslator) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func testLimits() config.StreamingConfig {
	return config.StreamingConfig{
		SendIntervalSeconds:    0, // dispatch on every tick
		MaxBufferSize:          120,
		MaxBatchFrames:         30,
		MaxFramesPerRequest:    64,
		MaxRequestsPerSession:  5,
		PipelineTimeoutSeconds: 1,
		HeartbeatTimeoutSecs:   30,
		MaxMessagesPerSecond:   30,
		MaxConnectionSeconds:   900,
	}
}

type testFixture struct {
	ctrl    *Controller
	emitter *fakeEmitter
	trans   *fakeTranslator
	wallet  *billing.Service
	records *translation.MemoryStore
}

func newFixture(t *testing.T, limits config.StreamingConfig, credits int) *testFixture {
	t.Helper()
	emitter := &fakeEmitter{}
	trans := &fakeTranslator{}
	wallet := billing.NewService(billing.NewMemoryStore(billing.Plan{
		ID: 1, Name: "Test", Type: "free", CreditsPerMonth: credits, Active: true,
	}))
	records := translation.NewMemoryStore()

	ctrl := New(Options{
		UserID:     "user-1",
		Limits:     limits,
		Translator: trans,
		Wallet:     wallet,
		Records:    records,
		Emitter:    emitter,
	})
	return &testFixture{ctrl: ctrl, emitter: emitter, trans: trans, wallet: wallet, records: records}
}

func TestStartConsumesOneCreditAndCreatesRecord(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	ctx := context.Background()

	f.ctrl.StartTranslation(ctx, OutputText)

	assert.Equal(t, StateRunning, f.ctrl.State())

	remaining, err := f.wallet.Remaining(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)

	msgs := f.emitter.messages()
	require.NotEmpty(t, msgs)
	status, ok := msgs[len(msgs)-1].(StatusMessage)
	require.True(t, ok)
	assert.Equal(t, "processing", status.Status)
	assert.NotZero(t, status.TranslationID)

	rec, ok := f.records.Get(status.TranslationID)
	require.True(t, ok)
	assert.Equal(t, translation.StatusProcessing, rec.Status)
	assert.Equal(t, translation.DirectionFromSign, rec.Direction)
	assert.Equal(t, translation.ModeStreaming, rec.ProcessingMode)
}

func TestStartWhileRunningIsIgnored(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	ctx := context.Background()

	f.ctrl.StartTranslation(ctx, OutputText)
	before := len(f.emitter.messages())

	f.ctrl.StartTranslation(ctx, OutputText)

	remaining, err := f.wallet.Remaining(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining, "a duplicate start must not burn a second credit")
	assert.Len(t, f.emitter.messages(), before)
}

func TestStartWithoutCreditsStaysIdle(t *testing.T) {
	f := newFixture(t, testLimits(), 1)
	ctx := context.Background()

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.StopTranslation(ctx, "test")
	f.ctrl.StartTranslation(ctx, OutputText)

	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Contains(t, f.emitter.errorMessages(), "Not enough credits")
}

func TestQuotaExceededClosesSession(t *testing.T) {
	limits := testLimits()
	limits.MaxRequestsPerSession = 1
	f := newFixture(t, limits, 5)
	ctx := context.Background()

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.StopTranslation(ctx, "test")
	f.ctrl.StartTranslation(ctx, OutputText)

	assert.Contains(t, f.emitter.errorMessages(), "Session quota exceeded")
	code, closed := f.emitter.closedWith()
	require.True(t, closed)
	assert.Equal(t, CloseQuotaExceeded, code)
}

func TestBatchLoopEmitsPartialsInOrder(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.results = []string{"hello", "world"}
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("frame-1"))
	f.ctrl.OnFrame([]byte("frame-2"))

	require.Eventually(t, func() bool {
		return len(f.emitter.partials()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	f.ctrl.OnFrame([]byte("frame-3"))
	require.Eventually(t, func() bool {
		return len(f.emitter.partials()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"hello", "world"}, f.emitter.partials())

	f.trans.mu.Lock()
	first := f.trans.batches[0]
	f.trans.mu.Unlock()
	require.NotEmpty(t, first)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("frame-1")), first[0])
}

func TestBatchesRespectSendInterval(t *testing.T) {
	limits := testLimits()
	limits.SendIntervalSeconds = 1
	f := newFixture(t, limits, 5)
	f.trans.results = []string{"one", "two"}
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("frame-1"))

	// Buffered frames wait out the interval before the first dispatch.
	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, f.trans.batchCount())

	require.Eventually(t, func() bool { return f.trans.batchCount() >= 1 }, 3*time.Second, 10*time.Millisecond)

	f.ctrl.OnFrame([]byte("frame-2"))
	require.Eventually(t, func() bool { return f.trans.batchCount() >= 2 }, 3*time.Second, 10*time.Millisecond)

	f.trans.mu.Lock()
	gap := f.trans.times[1].Sub(f.trans.times[0])
	f.trans.mu.Unlock()
	assert.GreaterOrEqual(t, gap, 900*time.Millisecond)
}

func TestStopFinalizesRecordWithJoinedText(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.results = []string{"hello", "world"}
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("a"))
	require.Eventually(t, func() bool { return len(f.emitter.partials()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	f.ctrl.OnFrame([]byte("b"))
	require.Eventually(t, func() bool { return len(f.emitter.partials()) >= 2 }, 2*time.Second, 10*time.Millisecond)

	f.ctrl.StopTranslation(ctx, "test")

	assert.Equal(t, StateIdle, f.ctrl.State())

	recs, err := f.records.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, translation.StatusCompleted, recs[0].Status)
	assert.Equal(t, "hello world", recs[0].OutputText)

	msgs := f.emitter.messages()
	last, ok := msgs[len(msgs)-1].(StatusMessage)
	require.True(t, ok)
	assert.Equal(t, "stopped", last.Status)
}

func TestFramesBeforeStartAreDiscarded(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.OnFrame([]byte("early"))
	time.Sleep(300 * time.Millisecond)

	assert.Zero(t, f.trans.batchCount())
	assert.Empty(t, f.emitter.partials())
}

func TestDispatchErrorKeepsSessionRunning(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.err = errors.New("model exploded")
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("frame"))

	require.Eventually(t, func() bool {
		for _, m := range f.emitter.errorMessages() {
			if m == "AI service temporary error" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateRunning, f.ctrl.State())
}

func TestDispatchTimeoutWarnsAndContinues(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.block = true
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("frame"))

	require.Eventually(t, func() bool {
		for _, m := range f.emitter.messages() {
			if w, ok := m.(WarningMessage); ok && w.Message == "Poor connection, retrying..." {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, StateRunning, f.ctrl.State())
}

func TestVoiceModeSynthesizesFinalResult(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.results = []string{"hello"}
	f.trans.audio = []byte("wav-bytes")
	ctx := context.Background()

	go f.ctrl.Run()
	defer f.ctrl.Shutdown(ctx)

	f.ctrl.StartTranslation(ctx, OutputVoice)
	f.ctrl.OnFrame([]byte("frame"))
	require.Eventually(t, func() bool { return len(f.emitter.partials()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	f.ctrl.StopTranslation(ctx, "test")

	var final *FinalResultMessage
	for _, m := range f.emitter.messages() {
		if fr, ok := m.(FinalResultMessage); ok {
			final = &fr
		}
	}
	require.NotNil(t, final)
	assert.Equal(t, "hello", final.Text)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("wav-bytes")), final.Audio)
}

func TestVoiceModeWithoutPartialsStillEmitsFinalResult(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.audio = []byte("wav-bytes")
	ctx := context.Background()

	f.ctrl.StartTranslation(ctx, OutputVoice)
	f.ctrl.StopTranslation(ctx, "test")

	var final *FinalResultMessage
	for _, m := range f.emitter.messages() {
		if fr, ok := m.(FinalResultMessage); ok {
			final = &fr
		}
	}
	require.NotNil(t, final)
	assert.Empty(t, final.Text)
	assert.Empty(t, final.Audio)

	f.trans.mu.Lock()
	calls := f.trans.synthCalls
	f.trans.mu.Unlock()
	assert.Zero(t, calls, "empty text must not reach the synthesizer")
}

func TestPingAnswersPong(t *testing.T) {
	f := newFixture(t, testLimits(), 5)

	f.ctrl.OnPing()

	msgs := f.emitter.messages()
	require.Len(t, msgs, 1)
	_, ok := msgs[0].(PongMessage)
	assert.True(t, ok)
}

func TestHeartbeatTimeoutClosesSession(t *testing.T) {
	limits := testLimits()
	limits.HeartbeatTimeoutSecs = 0
	f := newFixture(t, limits, 5)

	go f.ctrl.Run()

	require.Eventually(t, func() bool {
		code, closed := f.emitter.closedWith()
		return closed && code == CloseHeartbeatTimeout
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLifetimeLimitClosesSession(t *testing.T) {
	limits := testLimits()
	limits.MaxConnectionSeconds = 0
	f := newFixture(t, limits, 5)

	go f.ctrl.Run()

	require.Eventually(t, func() bool {
		code, closed := f.emitter.closedWith()
		return closed && code == CloseLifetimeExceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownFinalizesRunningTranslation(t *testing.T) {
	f := newFixture(t, testLimits(), 5)
	f.trans.results = []string{"goodbye"}
	ctx := context.Background()

	go f.ctrl.Run()

	f.ctrl.StartTranslation(ctx, OutputText)
	f.ctrl.OnFrame([]byte("frame"))
	require.Eventually(t, func() bool { return len(f.emitter.partials()) >= 1 }, 2*time.Second, 10*time.Millisecond)

	f.ctrl.Shutdown(ctx)

	assert.Equal(t, StateClosed, f.ctrl.State())
	recs, err := f.records.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, translation.StatusCompleted, recs[0].Status)
	assert.Equal(t, "goodbye", recs[0].OutputText)
}
