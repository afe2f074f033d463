package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tafahom/backend/internal/aiclient"
	"github.com/tafahom/backend/internal/glossary"
)

type stubAssembler struct {
	calls [][]string
}

func (s *stubAssembler) Assemble(ctx context.Context, tokens []string) (string, error) {
	s.calls = append(s.calls, tokens)
	return "http://localhost/media/generated/out.mp4", nil
}

func jsonHandler(t *testing.T, response any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}
}

func TestSignToTextUsesDirectCVText(t *testing.T) {
	cv := httptest.NewServer(jsonHandler(t, map[string]string{"text": "يوجد حريق"}))
	defer cv.Close()

	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		Vision:   aiclient.NewVisionClient(client, cv.URL),
		Glossary: glossary.Default(),
		Timeout:  2 * time.Second,
	})

	text, err := orch.SignToText(context.Background(), []string{"ZnJhbWU="})
	require.NoError(t, err)
	assert.Equal(t, "يوجد حريق", text)
}

func TestSignToTextFallsBackToGlossRendering(t *testing.T) {
	cv := httptest.NewServer(jsonHandler(t, map[string]any{"gloss": []string{"حريق"}}))
	defer cv.Close()
	nlp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"حريق"}, body["gloss"])
		json.NewEncoder(w).Encode(map[string]string{"text": "يوجد حريق"})
	}))
	defer nlp.Close()

	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		Vision:      aiclient.NewVisionClient(client, cv.URL),
		GlossToText: aiclient.NewGlossToTextClient(client, nlp.URL),
		Glossary:    glossary.Default(),
		Timeout:     2 * time.Second,
	})

	text, err := orch.SignToText(context.Background(), []string{"ZnJhbWU="})
	require.NoError(t, err)
	assert.Equal(t, "يوجد حريق", text)
}

func TestSignToTextEmptyBatchFails(t *testing.T) {
	orch := NewOrchestrator(Options{Glossary: glossary.Default()})

	_, err := orch.SignToText(context.Background(), nil)
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "sign_to_text", perr.Pipeline)
}

func TestTextToSignResolvesAndAssembles(t *testing.T) {
	nlp := httptest.NewServer(jsonHandler(t, map[string]any{"gloss": []string{"نار", "لا"}}))
	defer nlp.Close()

	assembler := &stubAssembler{}
	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		TextToGloss: aiclient.NewTextToGlossClient(client, nlp.URL),
		Glossary:    glossary.Default(),
		Video:       assembler,
		Timeout:     2 * time.Second,
	})

	result, err := orch.TextToSign(context.Background(), "النار مشتعلة")
	require.NoError(t, err)

	assert.Equal(t, []string{"حريق"}, result.Gloss, "synonym folded, filler dropped")
	assert.Equal(t, "http://localhost/media/generated/out.mp4", result.VideoURL)
	require.Len(t, assembler.calls, 1)
	assert.Equal(t, []string{"حريق"}, assembler.calls[0])
}

func TestTextToSignUnsupportedVocabulary(t *testing.T) {
	nlp := httptest.NewServer(jsonHandler(t, map[string]any{"gloss": []string{"zzz"}}))
	defer nlp.Close()

	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		TextToGloss: aiclient.NewTextToGlossClient(client, nlp.URL),
		Glossary:    glossary.Default(),
		Video:       &stubAssembler{},
		Timeout:     2 * time.Second,
	})

	_, err := orch.TextToSign(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrNoSupportedSigns)
}

func TestTextToSignEmptyInput(t *testing.T) {
	orch := NewOrchestrator(Options{Glossary: glossary.Default()})
	_, err := orch.TextToSign(context.Background(), "   ")
	assert.Error(t, err)
}

func TestVoiceToSignRejectsNonWAVBeforeSTT(t *testing.T) {
	var sttCalled bool
	stt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sttCalled = true
	}))
	defer stt.Close()

	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		STT:      aiclient.NewSTTClient(client, stt.URL),
		Glossary: glossary.Default(),
		Timeout:  2 * time.Second,
	})

	_, err := orch.VoiceToSign(context.Background(), strings.NewReader("not riff"), "a.mp3")
	assert.ErrorIs(t, err, ErrNotWAV)
	assert.False(t, sttCalled)
}

func TestSignToVoiceSynthesizes(t *testing.T) {
	cv := httptest.NewServer(jsonHandler(t, map[string]string{"text": "انتبه"}))
	defer cv.Close()
	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}))
	defer tts.Close()

	client := aiclient.New(2*time.Second, "")
	orch := NewOrchestrator(Options{
		Vision:   aiclient.NewVisionClient(client, cv.URL),
		TTS:      aiclient.NewTTSClient(client, tts.URL),
		Glossary: glossary.Default(),
		Timeout:  2 * time.Second,
	})

	result, err := orch.SignToVoice(context.Background(), []string{"ZnJhbWU="})
	require.NoError(t, err)
	assert.Equal(t, "انتبه", result.Text)
	assert.Equal(t, []byte("audio-bytes"), result.Audio)
}
