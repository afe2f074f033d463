package aiclient

import (
	"context"
	"strings"
)

// VisionClient calls the computer-vision service that recognizes sign
// frames.
type VisionClient struct {
	client  *Client
	baseURL string
}

func NewVisionClient(client *Client, baseURL string) *VisionClient {
	return &VisionClient{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// VisionResult is the CV response. The service returns either a gloss
// token sequence or directly decoded text depending on the model variant.
type VisionResult struct {
	Gloss []string `json:"gloss"`
	Text  string   `json:"text"`
}

// SignToGloss submits base64-encoded frames for recognition.
func (v *VisionClient) SignToGloss(ctx context.Context, frames []string) (*VisionResult, error) {
	var out VisionResult
	err := v.client.postJSON(ctx, "cv", v.baseURL+"/cv/sign-to-gloss", map[string]any{
		"frames": frames,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
