// Package session defines the durable session context record and its
// persistence abstraction for the arassist runtime.
package session

import "time"

// HapticCue is the feedback signal hint returned to the AR client.
type HapticCue string

const (
	CueGuideToTarget HapticCue = "guide_to_target"
	CueSuccessPulse  HapticCue = "success_pulse"
	CueNone          HapticCue = "none"
)

// CoerceHapticCue maps arbitrary model output onto the three valid cues.
// Anything unrecognized becomes CueNone.
func CoerceHapticCue(s string) HapticCue {
	switch HapticCue(s) {
	case CueGuideToTarget, CueSuccessPulse, CueNone:
		return HapticCue(s)
	}
	return CueNone
}

// GazeVector is the user's gaze direction. Advisory context only.
type GazeVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Instruction is the structured guidance produced for one task step.
type Instruction struct {
	Steps     []string  `json:"steps"`
	TargetID  string    `json:"target_id"`
	HapticCue HapticCue `json:"haptic_cue"`
}

// FollowUpEntry records one follow-up question and its answer.
// Entries are append-only; insertion order is chronological.
type FollowUpEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Question    string    `json:"question"`
	AnswerSteps []string  `json:"answer_steps"`
}

// Context is the durable per-session record, one JSON file per session id.
// A non-empty Error marks a degraded record.
type Context struct {
	SessionID     string          `json:"session_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Task          string          `json:"task"`
	Step          string          `json:"step"`
	GazeVector    *GazeVector     `json:"gaze_vector,omitempty"`
	ImageAnalysis string          `json:"image_analysis"`
	Instruction   Instruction     `json:"instruction"`
	FollowUpQA    []FollowUpEntry `json:"follow_up_qa,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// AppendFollowUp appends a question/answer pair to the record.
func (c *Context) AppendFollowUp(at time.Time, question string, answerSteps []string) {
	c.FollowUpQA = append(c.FollowUpQA, FollowUpEntry{
		Timestamp:   at,
		Question:    question,
		AnswerSteps: answerSteps,
	})
	c.Timestamp = at
}
