// Package chat implements the per-turn conversation protocol: resolve the
// session, seed the system instruction on first contact, call the model,
// record the exchange, and enforce the retention bound.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verdiyev/caremate/internal/domain"
	"github.com/verdiyev/caremate/internal/llm"
	"github.com/verdiyev/caremate/internal/logging"
	"github.com/verdiyev/caremate/internal/session"
)

// GenerationError reports that the model call failed or timed out. The
// conversation history is untouched when this is returned.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// InstructionBuilder produces the system instruction for a new session.
// It must be pure: same profile in, same text out.
type InstructionBuilder func(domain.Profile) string

// Config configures the orchestrator.
type Config struct {
	Model           string
	MaxTokens       int
	Temperature     *float64
	MaxMessages     int           // retention bound per session
	GenerateTimeout time.Duration // per-call model timeout
}

// TurnRequest is one validated chat request. Profile fields are assumed to
// have passed edge validation (non-empty name, age 1-120, normalized gender).
type TurnRequest struct {
	Profile   domain.Profile
	Message   string
	SessionID string // optional; a fresh one is manufactured when empty
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Reply     string        `json:"reply"`
	SessionID string        `json:"sessionId"`
	Model     string        `json:"model,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// StreamCallback receives streaming events while a turn is generated.
type StreamCallback func(event llm.StreamEvent)

// Orchestrator executes chat turns against a session store and an LLM
// provider. Turns for the same session key are mutually exclusive; distinct
// keys proceed in parallel.
type Orchestrator struct {
	cfg      Config
	client   llm.Client
	sessions session.Store
	instruct InstructionBuilder
	locks    keyedLocks
	log      *logging.Logger
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(
	cfg Config,
	client llm.Client,
	sessions session.Store,
	instruct InstructionBuilder,
	log *logging.Logger,
) *Orchestrator {
	if cfg.MaxMessages < 1 {
		cfg.MaxMessages = 20
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		instruct: instruct,
		log:      log.Sub("chat"),
	}
}

// HandleTurn runs one chat turn end-to-end and returns the assistant reply.
//
// The session is seeded with the system instruction if and only if its
// history is empty; seeding is gated on emptiness alone, so a session that
// already has messages never receives a second instruction. On model
// failure no messages are appended and a *GenerationError is returned.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return o.run(ctx, req, nil)
}

// HandleTurnStream runs one chat turn with streaming output. The callback
// receives delta events as generation progresses; history bookkeeping is
// identical to HandleTurn.
func (o *Orchestrator) HandleTurnStream(ctx context.Context, req TurnRequest, cb StreamCallback) (*TurnResult, error) {
	return o.run(ctx, req, cb)
}

func (o *Orchestrator) run(ctx context.Context, req TurnRequest, cb StreamCallback) (*TurnResult, error) {
	start := time.Now()

	sid := req.SessionID
	if sid == "" {
		// No session id supplied: manufacture one so unrelated calls for
		// the same name never share history. The id is returned to the
		// caller so the thread can be continued explicitly.
		sid = uuid.New().String()
	}
	key := domain.NewSessionKey(req.Profile.Name, sid)

	unlock := o.locks.lock(key.String())
	defer unlock()

	o.sessions.GetOrCreate(key)

	if o.sessions.Len(key) == 0 {
		sys := o.instruct(req.Profile)
		if err := o.sessions.Append(key, domain.Message{
			Role:    domain.RoleSystem,
			Content: sys,
		}); err != nil {
			return nil, err
		}
		o.log.Debug().
			Str("key", key.String()).
			Int("instructionLen", len(sys)).
			Msg("seeded new session")
	}

	history := o.sessions.History(key)

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	reply, usage, model, err := o.generate(genCtx, history, req.Message, cb)
	if err != nil {
		o.log.Error().
			Err(err).
			Str("key", key.String()).
			Int("historyLen", len(history)).
			Msg("model call failed")
		return nil, &GenerationError{Err: err}
	}

	now := time.Now()
	if err := o.sessions.Append(key, domain.Message{
		Role:      domain.RoleUser,
		Content:   req.Message,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}
	if err := o.sessions.Append(key, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}
	if err := o.sessions.Trim(key, o.cfg.MaxMessages); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("user", key.Name).
		Int("age", req.Profile.Age).
		Str("gender", string(req.Profile.Gender)).
		Str("session", sid).
		Int("msgLen", len(req.Message)).
		Int("replyLen", len(reply)).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Msg("chat turn")

	return &TurnResult{
		Reply:     reply,
		SessionID: sid,
		Model:     model,
		Usage:     usage,
		Duration:  time.Since(start),
	}, nil
}

// generate sends the ordered history plus the new user message to the
// provider. The stored history is never mutated here; the pending user
// message only becomes durable after generation succeeds.
func (o *Orchestrator) generate(ctx context.Context, history []domain.Message, message string, cb StreamCallback) (reply string, usage llm.Usage, model string, err error) {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	req := llm.CompletionRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Stream:      cb != nil,
	}

	if cb == nil {
		resp, err := o.client.Complete(ctx, req)
		if err != nil {
			return "", llm.Usage{}, "", err
		}
		return resp.Content, resp.Usage, resp.Model, nil
	}

	ch, err := o.client.Stream(ctx, req)
	if err != nil {
		return "", llm.Usage{}, "", err
	}

	var full string
	var final *llm.CompletionResponse
	for evt := range ch {
		switch evt.Type {
		case "delta":
			full += evt.Content
			cb(evt)
		case "done":
			final = evt.Response
		case "error":
			return "", llm.Usage{}, "", fmt.Errorf("stream error: %s", evt.Error)
		}
	}

	if final == nil {
		final = &llm.CompletionResponse{Content: full, Model: o.cfg.Model}
	}
	if final.Content == "" {
		final.Content = full
	}
	return final.Content, final.Usage, final.Model, nil
}

// Sessions exposes the underlying session store, mainly for diagnostics.
func (o *Orchestrator) Sessions() session.Store {
	return o.sessions
}
