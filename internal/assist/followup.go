package assist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/szaher/arassist/internal/events"
	"github.com/szaher/arassist/internal/llm"
	"github.com/szaher/arassist/internal/parse"
	"github.com/szaher/arassist/internal/session"
)

// FollowUpResult is the follow-up pipeline output. PreviousInstruction
// is the stored instruction rendered as a bulleted block, echoed back
// so the client can display the context the answer was built on.
type FollowUpResult struct {
	SessionID           string
	AnswerSteps         []string
	Task                string
	Step                string
	PreviousInstruction string
}

// FollowUp answers free-form questions against a stored session record.
//
// Inference failures are reported directly: no retry. The client passed
// here should be the bare one, not a retry-wrapped one.
type FollowUp struct {
	client llm.Client
	store  session.Store
	opts   options
}

// NewFollowUp creates the follow-up pipeline.
func NewFollowUp(client llm.Client, store session.Store, opts ...Option) *FollowUp {
	return &FollowUp{
		client: client,
		store:  store,
		opts:   buildOptions(defaultFollowUpModel, 0.5, opts),
	}
}

// Run loads the session record, answers the question with a text-only
// inference call, appends the exchange to the record, and saves it.
func (f *FollowUp) Run(ctx context.Context, sessionID, question string) (*FollowUpResult, error) {
	if sessionID == "" {
		return nil, validationError("missing session_id")
	}
	if err := session.ValidateID(sessionID); err != nil {
		return nil, validationError("invalid session_id %q", sessionID)
	}
	if question == "" {
		return nil, validationError("missing question")
	}

	logger := f.opts.logger.With("session_id", sessionID)
	f.opts.emitter.Emit(events.New(events.FollowUpStarted, sessionID))

	record, err := f.store.Load(sessionID)
	if err != nil {
		return nil, f.loadError(sessionID, err, logger)
	}

	resp, err := f.client.Invoke(ctx, llm.Request{
		Model:       f.opts.model,
		Prompt:      followUpPrompt(record, question),
		MaxTokens:   f.opts.maxTokens,
		Temperature: f.opts.temperature,
	})
	if err != nil {
		logger.Error("follow-up inference failed", "error", err)
		f.opts.emitter.Emit(events.New(events.FollowUpFailed, sessionID).WithData("error", err.Error()))
		return nil, &Error{Code: CodeProvider, Message: "inference provider unavailable", Err: err}
	}

	answerSteps := parse.Steps(resp.Text)
	f.opts.emitter.Emit(events.New(events.FollowUpAnswered, sessionID).WithData("answer_steps", len(answerSteps)))

	record.AppendFollowUp(time.Now().UTC(), question, answerSteps)
	if err := f.store.Save(record); err != nil {
		logger.Error("follow-up context save failed", "error", err)
		return nil, &Error{Code: CodePersistence, Message: "failed to persist session context", Err: err}
	}
	f.opts.emitter.Emit(events.New(events.FollowUpSaved, sessionID))

	logger.Info("follow-up completed", "task", record.Task, "step", record.Step, "answer_steps", len(answerSteps))

	return &FollowUpResult{
		SessionID:           sessionID,
		AnswerSteps:         answerSteps,
		Task:                record.Task,
		Step:                record.Step,
		PreviousInstruction: bulleted(record.Instruction.Steps),
	}, nil
}

func (f *FollowUp) loadError(sessionID string, err error, logger *slog.Logger) *Error {
	if errors.Is(err, session.ErrNotFound) {
		return &Error{Code: CodeSessionNotFound, Message: "session not found: " + sessionID, Err: err}
	}
	var corrupt *session.CorruptError
	if errors.As(err, &corrupt) {
		logger.Error("session record corrupt", "error", err)
		return &Error{Code: CodePersistence, Message: "session record unreadable", Err: err}
	}
	logger.Error("session load failed", "error", err)
	return &Error{Code: CodePersistence, Message: "failed to load session context", Err: err}
}
