package aiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// NLPOutput is the tagged response of the text→gloss service. Historically
// the service has answered under three keys (gloss_translation, gloss,
// text) with either a string or a token list; UnmarshalJSON folds all of
// them into one of two shapes and rejects anything else.
type NLPOutput struct {
	// Tokens is set when the service returned a token list.
	Tokens []string
	// Text is set when the service returned a single string.
	Text string
}

func (o *NLPOutput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, key := range []string{"gloss_translation", "gloss", "text"} {
		val, ok := raw[key]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(val, &s); err == nil {
			if s == "" {
				continue
			}
			o.Text = s
			return nil
		}

		var list []string
		if err := json.Unmarshal(val, &list); err == nil {
			if len(list) == 0 {
				continue
			}
			o.Tokens = list
			return nil
		}

		return fmt.Errorf("nlp key %q is neither string nor string list", key)
	}

	return fmt.Errorf("nlp response missing gloss output")
}

// Empty reports whether the service produced no usable output.
func (o *NLPOutput) Empty() bool {
	return len(o.Tokens) == 0 && strings.TrimSpace(o.Text) == ""
}

// TextToGlossClient calls the NLP service that converts natural language
// text into a gloss sequence.
type TextToGlossClient struct {
	client  *Client
	baseURL string
}

func NewTextToGlossClient(client *Client, baseURL string) *TextToGlossClient {
	return &TextToGlossClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *TextToGlossClient) TextToGloss(ctx context.Context, text string) (*NLPOutput, error) {
	var out NLPOutput
	err := t.client.postJSON(ctx, "text_to_gloss", t.baseURL+"/generate", map[string]any{
		"text": text,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GlossToTextClient calls the NLP service that renders a gloss sequence
// into natural language.
type GlossToTextClient struct {
	client  *Client
	baseURL string
}

func NewGlossToTextClient(client *Client, baseURL string) *GlossToTextClient {
	return &GlossToTextClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *GlossToTextClient) GlossToText(ctx context.Context, gloss []string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := g.client.postJSON(ctx, "gloss_to_text", g.baseURL+"/generate", map[string]any{
		"gloss": gloss,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}
