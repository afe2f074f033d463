package aiclient

import (
	"context"
	"errors"
	"io"
	"strings"
)

// STTClient calls the speech-to-text service. The service accepts WAV
// only, as a multipart form upload.
type STTClient struct {
	client  *Client
	baseURL string
}

func NewSTTClient(client *Client, baseURL string) *STTClient {
	return &STTClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// SpeechToText transcribes a WAV stream. Older deployments of the service
// expose the model at "/" instead of "/predict"; a 404/405 on the primary
// route falls back to the root route.
func (s *STTClient) SpeechToText(ctx context.Context, wav io.ReadSeeker, filename, language, task string) (string, error) {
	fields := map[string]string{"language": language, "task": task}

	var out struct {
		Text string `json:"text"`
	}

	err := s.client.postMultipart(ctx, "stt", s.baseURL+"/predict", "file", filename, wav, fields, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == 404 || apiErr.Status == 405) {
			if _, seekErr := wav.Seek(0, io.SeekStart); seekErr != nil {
				return "", seekErr
			}
			err = s.client.postMultipart(ctx, "stt", s.baseURL+"/", "file", filename, wav, fields, &out)
		}
	}
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// TTSClient calls the text-to-speech service, which returns raw audio
// bytes rather than JSON.
type TTSClient struct {
	client  *Client
	baseURL string
}

func NewTTSClient(client *Client, baseURL string) *TTSClient {
	return &TTSClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *TTSClient) TextToSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	body := map[string]any{"text": text}
	if voice != "" {
		body["voice"] = voice
	}
	return t.client.postRaw(ctx, "tts", t.baseURL+"/", body)
}
