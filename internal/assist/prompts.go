package assist

import (
	"fmt"
	"strings"

	"github.com/szaher/arassist/internal/session"
)

// assistPrompt builds the fused scene-analysis-and-instruction prompt
// for the multimodal call.
func assistPrompt(task, step string, gaze *session.GazeVector) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are assisting a technician through an AR passthrough view.

Task: %s
Current Step: %s
Gaze Direction: (%.3f, %.3f, %.3f)

Analyze the attached image and identify:
1. What components or objects are visible
2. What the user appears to be focused on (based on gaze)
3. Any potential issues or points of confusion

Then provide the next instruction.

Requirements:
- Steps must be specific and actionable
- If there's a specific component to interact with, provide its ID
- Suggest appropriate haptic feedback

Respond in JSON format:
{
  "image_analysis": "Concise technical observations here",
  "instruction": {
    "steps": ["First action", "Second action"],
    "target_id": "component_id or empty string",
    "haptic_cue": "guide_to_target | success_pulse | none"
  }
}`, task, step, gaze.X, gaze.Y, gaze.Z)
	return b.String()
}

// followUpPrompt builds the context-augmented prompt for a follow-up
// question against a stored session record.
func followUpPrompt(record *session.Context, question string) string {
	return fmt.Sprintf(`You are an expert technical assistant helping a user with: %s

Previous Context:
- Current Step: %s
- Image Analysis: %s
- Previous Instruction:
%s

The user has a follow-up question about this context:
%q

Provide a clear, helpful answer as a numbered list of actionable steps. Format your response as:
1. First step or point
2. Second step or point
3. Third step or point
(etc.)

Be concise, practical, and based on the previous context.`,
		record.Task, record.Step, record.ImageAnalysis,
		bulleted(record.Instruction.Steps), question)
}

// bulleted renders instruction steps as a bulleted block.
func bulleted(steps []string) string {
	lines := make([]string, len(steps))
	for i, s := range steps {
		lines[i] = "- " + s
	}
	return strings.Join(lines, "\n")
}
