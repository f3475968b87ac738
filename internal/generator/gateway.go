// internal/generator/gateway.go
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	httpclient "pages-deployer/internal/common/http"
)

var ErrGatewayFailed = errors.New("GATEWAY_GENERATION_FAILED")

type gatewayRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
}

type gatewayResponse struct {
	Text string `json:"text"`
}

// GatewayBackend posts prompts to an internal model gateway at <base>/api/ai/generate.
type GatewayBackend struct {
	baseURL string
	model   string
	client  *httpclient.Client
}

func NewGatewayBackend(baseURL, model string, timeout time.Duration) *GatewayBackend {
	return &GatewayBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  httpclient.NewClient(timeout),
	}
}

func (g *GatewayBackend) Name() string { return "gateway" }

func (g *GatewayBackend) Complete(ctx context.Context, c Completion) (string, error) {
	var out gatewayResponse
	_, err := g.client.PostJSON(ctx, g.baseURL+"/api/ai/generate", gatewayRequest{
		Prompt:      c.Prompt,
		System:      c.System,
		Model:       g.model,
		Temperature: c.Temperature,
	}, &out)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", ErrEmptyCompletion
	}
	return out.Text, nil
}
