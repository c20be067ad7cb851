package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider Provider
		wantModel    string
	}{
		{
			name:         "gemini prefix",
			input:        "gemini/gemini-2.5-flash",
			wantProvider: ProviderGemini,
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "anthropic prefix",
			input:        "anthropic/claude-sonnet-4-20250514",
			wantProvider: ProviderAnthropic,
			wantModel:    "claude-sonnet-4-20250514",
		},
		{
			name:         "claude model name inferred as anthropic",
			input:        "claude-sonnet-4-20250514",
			wantProvider: ProviderAnthropic,
			wantModel:    "claude-sonnet-4-20250514",
		},
		{
			name:         "gemini model name",
			input:        "gemini-2.5-flash",
			wantProvider: ProviderGemini,
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "unknown model defaults to gemini",
			input:        "mystery-model",
			wantProvider: ProviderGemini,
			wantModel:    "mystery-model",
		},
		{
			name:         "case-insensitive prefix",
			input:        "Anthropic/claude-3.5",
			wantProvider: ProviderAnthropic,
			wantModel:    "claude-3.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model := ParseModelString(tt.input)
			if provider != tt.wantProvider {
				t.Errorf("provider = %q, want %q", provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("model = %q, want %q", model, tt.wantModel)
			}
		})
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWithRetrySucceedsOnSecondAttempt(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Error: &ProviderError{Provider: "gemini", Err: fmt.Errorf("quota")}},
		MockResponse{Text: "ok"},
	)
	client := WithRetry(mock, RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}, testLogger())

	resp, err := client.Invoke(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Invoke returned unexpected error: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Text = %q, want %q", resp.Text, "ok")
	}
	if got := len(mock.Calls()); got != 2 {
		t.Errorf("call count = %d, want 2", got)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	provErr := &ProviderError{Provider: "gemini", Err: fmt.Errorf("unreachable")}
	mock := NewMockClient(MockResponse{Error: provErr})
	client := WithRetry(mock, RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}, testLogger())

	_, err := client.Invoke(context.Background(), Request{Model: "m", Prompt: "p"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if got := len(mock.Calls()); got != 2 {
		t.Errorf("call count = %d, want 2", got)
	}
}

func TestWithRetryContextCanceledDuringDelay(t *testing.T) {
	mock := NewMockClient(MockResponse{Error: fmt.Errorf("down")})
	client := WithRetry(mock, RetryPolicy{MaxAttempts: 3, Delay: time.Minute}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Invoke(ctx, Request{Model: "m", Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if got := len(mock.Calls()); got != 1 {
		t.Errorf("call count = %d, want 1", got)
	}
}

func TestWithRetryOnRetryHook(t *testing.T) {
	retries := 0
	policy := RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond, OnRetry: func() { retries++ }}

	mock := NewMockClient(
		MockResponse{Error: fmt.Errorf("down")},
		MockResponse{Error: fmt.Errorf("down")},
	)
	client := WithRetry(mock, policy, testLogger())
	_, _ = client.Invoke(context.Background(), Request{Model: "m", Prompt: "p"})
	if retries != 1 {
		t.Errorf("retries = %d, want 1 for a single retry", retries)
	}

	retries = 0
	mock = NewMockClient(MockResponse{Text: "ok"})
	client = WithRetry(mock, policy, testLogger())
	if _, err := client.Invoke(context.Background(), Request{Model: "m", Prompt: "p"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0 when the first attempt succeeds", retries)
	}
}

func TestNewClientForModelGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if _, _, err := NewClientForModel(context.Background(), "gemini-2.5-flash", ""); err == nil {
		t.Error("expected error with no Gemini key available")
	}

	client, model, err := NewClientForModel(context.Background(), "gemini-2.5-flash", "configured-key")
	if err != nil {
		t.Fatalf("NewClientForModel with supplied key: %v", err)
	}
	if client == nil || model != "gemini-2.5-flash" {
		t.Errorf("client = %v, model = %q", client, model)
	}

	// Anthropic models never need the Gemini key.
	if _, _, err := NewClientForModel(context.Background(), "claude-sonnet-4-20250514", ""); err != nil {
		t.Errorf("anthropic client: %v", err)
	}
}

func TestMockClientSequence(t *testing.T) {
	mock := NewMockClient(
		MockResponse{Text: "first"},
		MockResponse{Text: "second"},
	)

	ctx := context.Background()
	for i, want := range []string{"first", "second", "second"} {
		resp, err := mock.Invoke(ctx, Request{Prompt: fmt.Sprintf("p%d", i)})
		if err != nil {
			t.Fatalf("Invoke %d: %v", i, err)
		}
		if resp.Text != want {
			t.Errorf("response %d = %q, want %q", i, resp.Text, want)
		}
	}

	if got := len(mock.Calls()); got != 3 {
		t.Errorf("recorded calls = %d, want 3", got)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := &ProviderError{Provider: "gemini", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ProviderError does not unwrap to inner error")
	}
}
