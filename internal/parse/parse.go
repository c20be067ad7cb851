// Package parse converts unstructured model output into the typed
// instruction and answer shapes used by the pipelines. Parsing never
// fails: malformed output degrades to a safe free-text fallback.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/szaher/arassist/internal/session"
)

// InstructionResult is the canonical parsed form of a combined
// scene-analysis-and-instruction response.
type InstructionResult struct {
	ImageAnalysis string
	Steps         []string
	TargetID      string
	HapticCue     session.HapticCue

	// Fallback is set when the response did not match any known JSON
	// shape and was handled as free text.
	Fallback bool
}

// responseShape is the union of JSON layouts the model has been observed
// to produce: the current nested instruction object with a steps array,
// an older nested form with a single text field, and the original flat
// instruction_text layout. Unknown shapes fall through to free text.
type responseShape struct {
	ImageAnalysis string `json:"image_analysis"`
	Instruction   *struct {
		Steps     []string `json:"steps"`
		Text      string   `json:"text"`
		TargetID  string   `json:"target_id"`
		HapticCue string   `json:"haptic_cue"`
	} `json:"instruction"`

	// Flat historical layout.
	InstructionText string `json:"instruction_text"`
	TargetID        string `json:"target_id"`
	HapticCue       string `json:"haptic_cue"`
}

var listMarker = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)

// Steps splits free text on numbered-list markers (a line boundary
// followed by digits, a period, and whitespace). An empty leading
// fragment is dropped, fragments are trimmed, and empty fragments are
// discarded. Text with no list markers yields the whole trimmed input
// as a single step.
func Steps(text string) []string {
	fragments := listMarker.Split(text, -1)
	steps := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			steps = append(steps, f)
		}
	}
	if len(steps) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return steps
}

// Instruction parses a raw model response into an InstructionResult.
//
// JSON matching a known shape is used directly; JSON wrapped in prose
// or code fences is recovered by parsing the substring from the first
// '{' to the last '}'; anything else is treated as free text and split
// into steps.
func Instruction(raw string) InstructionResult {
	if result, ok := decodeShape(raw); ok {
		return result
	}
	if inner, ok := extractJSON(raw); ok {
		if result, ok := decodeShape(inner); ok {
			return result
		}
	}
	return InstructionResult{
		Steps:     Steps(raw),
		HapticCue: session.CueNone,
		Fallback:  true,
	}
}

// decodeShape attempts to decode raw as one of the known JSON response
// shapes and normalize it. ok is false when raw is not JSON or the
// decoded object carries none of the recognized fields.
func decodeShape(raw string) (InstructionResult, bool) {
	var shape responseShape
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &shape); err != nil {
		return InstructionResult{}, false
	}

	result := InstructionResult{
		ImageAnalysis: shape.ImageAnalysis,
		TargetID:      shape.TargetID,
		HapticCue:     session.CoerceHapticCue(shape.HapticCue),
	}

	switch {
	case shape.Instruction != nil && len(shape.Instruction.Steps) > 0:
		result.Steps = trimAll(shape.Instruction.Steps)
	case shape.Instruction != nil && shape.Instruction.Text != "":
		result.Steps = Steps(shape.Instruction.Text)
	case shape.InstructionText != "":
		result.Steps = Steps(shape.InstructionText)
	}

	if shape.Instruction != nil {
		if shape.Instruction.TargetID != "" {
			result.TargetID = shape.Instruction.TargetID
		}
		if shape.Instruction.HapticCue != "" {
			result.HapticCue = session.CoerceHapticCue(shape.Instruction.HapticCue)
		}
	}

	if len(result.Steps) == 0 {
		// Valid JSON but no recognizable instruction content.
		return InstructionResult{}, false
	}
	return result, true
}

// extractJSON locates the first '{' and the last '}' in raw, recovering
// JSON wrapped in surrounding prose or markdown code fences.
func extractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
