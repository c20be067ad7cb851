// Package assist implements the session-scoped inference pipelines: the
// assist pipeline that turns a snapshot and task context into a
// structured instruction, and the follow-up pipeline that answers
// questions against the stored session record.
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

const (
	defaultAssistModel   = "gemini-2.5-flash"
	defaultFollowUpModel = "gemini-2.5-flash"
	defaultMaxTokens     = 1024
)

// Option configures a pipeline.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	emitter     events.Emitter
	model       string
	maxTokens   int
	temperature *float64
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEmitter sets the structured event sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *options) { o.emitter = emitter }
}

// WithModel sets the model passed to the inference client.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithMaxTokens sets the completion token cap.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = &t }
}

func buildOptions(model string, temperature float64, opts []Option) options {
	o := options{
		logger:      slog.Default(),
		emitter:     events.NoopEmitter{},
		model:       model,
		maxTokens:   defaultMaxTokens,
		temperature: &temperature,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Request is the validated input to the assist pipeline. The caller
// (validation middleware) has already checked shapes; the pipeline only
// requires the fields to be present.
type Request struct {
	SessionID string
	Task      string
	Step      string
	Gaze      *session.GazeVector
	Image     []byte
	ImageMIME string
}

func (r *Request) validate() *Error {
	switch {
	case len(r.Image) == 0:
		return validationError("missing snapshot image")
	case r.Task == "":
		return validationError("missing task")
	case r.Step == "":
		return validationError("missing step")
	case r.Gaze == nil:
		return validationError("missing gaze vector")
	case r.SessionID != "" && session.ValidateID(r.SessionID) != nil:
		return validationError("invalid session_id %q", r.SessionID)
	}
	return nil
}

// Result is the assist pipeline output. Degraded marks a run where
// inference failed after retry: the shape is still well-formed, with
// empty steps and the failure reason recorded.
type Result struct {
	SessionID     string
	Steps         []string
	TargetID      string
	HapticCue     session.HapticCue
	ParseFallback bool
	Degraded      bool
	FailureReason string
}

// Pipeline orchestrates the assist flow: build prompt, invoke the
// inference client, parse the response, persist the session record.
//
// Retry belongs to the client boundary: wrap the client with
// llm.WithRetry before constructing the pipeline.
type Pipeline struct {
	client llm.Client
	store  session.Store
	opts   options
}

// NewPipeline creates the assist pipeline.
func NewPipeline(client llm.Client, store session.Store, opts ...Option) *Pipeline {
	return &Pipeline{
		client: client,
		store:  store,
		opts:   buildOptions(defaultAssistModel, 0.2, opts),
	}
}

// Run executes the assist pipeline for one request.
//
// On provider failure the returned Result is degraded rather than an
// error, so the caller always receives a well-formed shape; only
// validation and persistence failures are returned as errors.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewID()
	}
	logger := p.opts.logger.With("session_id", sessionID, "task", req.Task, "step", req.Step)
	p.opts.emitter.Emit(events.New(events.AssistStarted, sessionID))

	raw, err := p.infer(ctx, req)
	if err != nil {
		return p.degrade(ctx, sessionID, req, err, logger)
	}
	p.opts.emitter.Emit(events.New(events.AssistInferred, sessionID).WithData("response_bytes", len(raw)))

	parsed := parse.Instruction(raw)

	record := p.buildRecord(sessionID, req, parsed)
	if err := p.store.Save(record); err != nil {
		logger.Error("context save failed", "error", err)
		return nil, &Error{Code: CodePersistence, Message: "failed to persist session context", Err: err}
	}
	p.opts.emitter.Emit(events.New(events.AssistPersisted, sessionID))

	logger.Info("assist completed", "steps", len(parsed.Steps), "target_id", parsed.TargetID, "haptic_cue", parsed.HapticCue)
	p.opts.emitter.Emit(events.New(events.AssistCompleted, sessionID))

	return &Result{
		SessionID:     sessionID,
		Steps:         parsed.Steps,
		TargetID:      parsed.TargetID,
		HapticCue:     parsed.HapticCue,
		ParseFallback: parsed.Fallback,
	}, nil
}

// infer performs the fused scene-analysis-and-instruction call.
func (p *Pipeline) infer(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.Invoke(ctx, llm.Request{
		Model:       p.opts.model,
		Prompt:      assistPrompt(req.Task, req.Step, req.Gaze),
		Image:       req.Image,
		ImageMIME:   req.ImageMIME,
		MaxTokens:   p.opts.maxTokens,
		Temperature: p.opts.temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// buildRecord assembles the session record from the parsed result. An
// existing record for the same id keeps its follow-up history: entries
// are append-only and never dropped by a new assist run.
func (p *Pipeline) buildRecord(sessionID string, req Request, parsed parse.InstructionResult) *session.Context {
	record := &session.Context{
		SessionID:     sessionID,
		Timestamp:     time.Now().UTC(),
		Task:          req.Task,
		Step:          req.Step,
		GazeVector:    req.Gaze,
		ImageAnalysis: parsed.ImageAnalysis,
		Instruction: session.Instruction{
			Steps:     parsed.Steps,
			TargetID:  parsed.TargetID,
			HapticCue: parsed.HapticCue,
		},
	}
	if prior, err := p.store.Load(sessionID); err == nil {
		record.FollowUpQA = prior.FollowUpQA
	}
	return record
}

// degrade handles inference failure after retry: persist a degraded
// record best-effort and return a well-formed empty result carrying the
// failure reason.
func (p *Pipeline) degrade(ctx context.Context, sessionID string, req Request, cause error, logger *slog.Logger) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(cause, ctxErr) {
		// Caller is gone; no point persisting or shaping a response.
		return nil, cause
	}

	logger.Error("inference failed after retry", "error", cause)

	record := p.buildRecord(sessionID, req, parse.InstructionResult{
		Steps:     []string{},
		HapticCue: session.CueNone,
	})
	record.Error = "inference failed: " + cause.Error()
	if err := p.store.Save(record); err != nil {
		logger.Error("degraded context save failed", "error", err)
	}
	p.opts.emitter.Emit(events.New(events.AssistDegraded, sessionID).WithData("error", cause.Error()))

	return &Result{
		SessionID:     sessionID,
		Steps:         []string{},
		TargetID:      "",
		HapticCue:     session.CueNone,
		Degraded:      true,
		FailureReason: cause.Error(),
	}, nil
}
