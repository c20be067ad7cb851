// Package llm defines the inference client abstraction for the arassist
// runtime.
package llm

import (
	"context"
	"fmt"
)

// Request contains parameters for a single completion call. Image is
// optional; when present it is sent as an inline part alongside the
// prompt text.
type Request struct {
	Model       string   `json:"model"`
	System      string   `json:"system,omitempty"`
	Prompt      string   `json:"prompt"`
	Image       []byte   `json:"-"`
	ImageMIME   string   `json:"image_mime,omitempty"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Response contains the model's completion text.
type Response struct {
	Text string `json:"text"`
}

// ProviderError wraps any failure from an inference provider: network,
// auth, and quota failures are all treated uniformly by callers.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Client is the interface for inference interactions.
type Client interface {
	// Invoke sends a request and returns the complete response text.
	// Failures are reported as *ProviderError.
	Invoke(ctx context.Context, req Request) (*Response, error)
}
