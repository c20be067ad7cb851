package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/szaher/arassist/internal/assist"
	"github.com/szaher/arassist/internal/media"
	"github.com/szaher/arassist/internal/session"
	"github.com/szaher/arassist/internal/telemetry"
)

// maxFieldLen caps every sanitized text field.
const maxFieldLen = 256

// handleAssist runs the full assist pipeline on a multipart request:
// a snapshot image plus task context, yielding a structured instruction.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := telemetry.RequestLogger(s.logger, r.Context(), "/v1/assist")

	if err := r.ParseMultipartForm(media.MaxImageBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "expected multipart form data")
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}

	file, header, err := r.FormFile("snapshot")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "missing snapshot image")
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, media.MaxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "failed to read snapshot")
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	if err := media.ValidateImage(image, contentType); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}

	image, reencoded, err := media.Downscale(image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("unreadable image: %v", err))
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}
	if reencoded {
		contentType = "image/jpeg"
	}

	taskStep := sanitizeString(r.FormValue("task_step"))
	currentTask := sanitizeString(r.FormValue("current_task"))
	sessionID := sanitizeString(r.FormValue("session_id"))

	gaze, err := parseGaze(r.FormValue("gaze_vector"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}

	result, err := s.assist.Run(r.Context(), assist.Request{
		SessionID: sessionID,
		Task:      currentTask,
		Step:      taskStep,
		Gaze:      gaze,
		Image:     image,
		ImageMIME: contentType,
	})
	if err != nil {
		status := writePipelineError(w, err)
		logger.Error("assist request failed", "status", status, "error", err)
		s.metrics.RecordRequest("assist", "error", time.Since(start))
		return
	}

	if result.ParseFallback {
		s.metrics.RecordParseFallback()
	}

	status := "success"
	if result.Degraded {
		status = "degraded"
	}

	resp := map[string]interface{}{
		"status":            status,
		"session_id":        result.SessionID,
		"instruction_id":    fmt.Sprintf("%s-%s", result.SessionID, taskStep),
		"instruction_steps": result.Steps,
		"target_id":         result.TargetID,
		"haptic_cue":        result.HapticCue,
	}
	if result.Degraded {
		resp["message"] = result.FailureReason
	}

	logger.Info("assist request complete",
		"session_id", result.SessionID,
		"status", status,
		"steps", len(result.Steps),
		"duration_ms", time.Since(start).Milliseconds())
	s.metrics.RecordRequest("assist", status, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// handleAsk answers a follow-up question about an existing session.
// The question arrives either as JSON or, for voice input, as a
// multipart form with an audio clip to transcribe first.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := telemetry.RequestLogger(s.logger, r.Context(), "/v1/ask")

	var (
		sessionID   string
		question    string
		transcribed bool
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		var err error
		sessionID, question, err = s.parseVoiceAsk(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			s.metrics.RecordRequest("ask", "error", time.Since(start))
			return
		}
		transcribed = true
	} else {
		var req struct {
			SessionID string `json:"session_id"`
			Question  string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "invalid request body")
			s.metrics.RecordRequest("ask", "error", time.Since(start))
			return
		}
		sessionID = sanitizeString(req.SessionID)
		question = sanitizeString(req.Question)
	}

	result, err := s.followUp.Run(r.Context(), sessionID, question)
	if err != nil {
		status := writePipelineError(w, err)
		logger.Error("follow-up request failed", "session_id", sessionID, "status", status, "error", err)
		s.metrics.RecordRequest("ask", "error", time.Since(start))
		return
	}

	resp := map[string]interface{}{
		"status":       "success",
		"session_id":   result.SessionID,
		"answer_steps": result.AnswerSteps,
		"context": map[string]string{
			"task":                 result.Task,
			"step":                 result.Step,
			"previous_instruction": result.PreviousInstruction,
		},
	}
	if transcribed {
		resp["transcribed_question"] = question
	}

	logger.Info("follow-up request complete",
		"session_id", result.SessionID,
		"steps", len(result.AnswerSteps),
		"duration_ms", time.Since(start).Milliseconds())
	s.metrics.RecordRequest("ask", "success", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// parseVoiceAsk extracts the session ID and transcribes the audio clip
// from a multipart follow-up request.
func (s *Server) parseVoiceAsk(r *http.Request) (sessionID, question string, err error) {
	if s.transcriber == nil {
		return "", "", fmt.Errorf("voice questions are not enabled")
	}
	if err := r.ParseMultipartForm(media.MaxAudioBytes + 1<<20); err != nil {
		return "", "", fmt.Errorf("expected multipart form data")
	}
	sessionID = sanitizeString(r.FormValue("session_id"))

	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", "", fmt.Errorf("missing audio clip")
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, media.MaxAudioBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("failed to read audio clip")
	}

	contentType := header.Header.Get("Content-Type")
	mime, ok := media.CanonicalAudioMIME(contentType)
	if !ok {
		return "", "", fmt.Errorf("unsupported audio type %q", contentType)
	}
	if err := media.ValidateAudio(audio, contentType); err != nil {
		return "", "", err
	}

	text, err := s.transcriber.Transcribe(r.Context(), audio, mime)
	if err != nil {
		return "", "", fmt.Errorf("transcription failed: %w", err)
	}
	question = sanitizeString(text)
	if question == "" {
		return "", "", fmt.Errorf("no speech detected in audio clip")
	}
	return sessionID, question, nil
}

// parseGaze decodes and validates the gaze_vector form field. All
// three components must be present and numeric.
func parseGaze(raw string) (*session.GazeVector, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("missing gaze_vector")
	}
	var decoded struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("gaze_vector must be a JSON object with numeric x, y, z")
	}
	if decoded.X == nil || decoded.Y == nil || decoded.Z == nil {
		return nil, fmt.Errorf("gaze_vector requires numeric x, y and z components")
	}
	return &session.GazeVector{X: *decoded.X, Y: *decoded.Y, Z: *decoded.Z}, nil
}

// sanitizeString strips NUL bytes, trims whitespace and caps length.
func sanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > maxFieldLen {
		return string(runes[:maxFieldLen])
	}
	return s
}
