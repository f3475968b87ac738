// internal/generator/backend.go
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrEmptyCompletion = errors.New("model returned no text")
	ErrUnknownBackend  = errors.New("unknown model backend")
)

// Completion is one prompt sent to a model.
type Completion struct {
	System      string
	Prompt      string
	Temperature float64
}

// Backend turns a prompt into raw model text. Implementations make exactly one call.
type Backend interface {
	Complete(ctx context.Context, c Completion) (string, error)
	Name() string
}

// NewBackend selects the configured backend.
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "gemini":
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Model)
	case "gateway":
		return NewGatewayBackend(cfg.GatewayURL, cfg.Model, cfg.Timeout), nil
	case "fake":
		return NewFakeBackend(""), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// FakeBackend returns a canned response. Used for local runs and tests.
type FakeBackend struct {
	mu       sync.Mutex
	Response string
	Err      error
	prompts  []Completion
}

func NewFakeBackend(response string) *FakeBackend {
	if response == "" {
		response = "===FILE: index.html===\n<!DOCTYPE html>\n<html><body><h1>Hello</h1></body></html>\n===END FILE==="
	}
	return &FakeBackend{Response: response}
}

func (f *FakeBackend) Name() string { return "fake" }

func (f *FakeBackend) Complete(_ context.Context, c Completion) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, c)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

// Calls returns the completions received so far.
func (f *FakeBackend) Calls() []Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Completion(nil), f.prompts...)
}
