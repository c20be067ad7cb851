// Package speech converts follow-up voice questions to text.
package speech

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Transcriber converts audio bytes into text.
type Transcriber interface {
	// Transcribe returns the spoken text in the audio. The MIME type
	// must be one of the canonical audio types from internal/media.
	Transcribe(ctx context.Context, audio []byte, mime string) (string, error)
}

const transcribePrompt = "Transcribe this audio verbatim. Return only the spoken words, with punctuation, and nothing else."

// GeminiTranscriber implements Transcriber using the Google GenAI API.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
}

// NewGeminiTranscriber creates a transcriber with the given API key and
// model.
func NewGeminiTranscriber(ctx context.Context, apiKey, model string) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiTranscriber{client: client, model: model}, nil
}

// Transcribe sends the audio for speech recognition.
func (t *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mime string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(audio, mime),
		}, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}
	return text, nil
}

// MockTranscriber returns a fixed transcription, for tests.
type MockTranscriber struct {
	Text string
	Err  error
}

// Transcribe returns the configured text or error.
func (m *MockTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}
