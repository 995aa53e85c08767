package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vizgen/internal/providers/claude"
	"vizgen/internal/render"
)

// maxNameLength bounds the caller-supplied visualization name.
const maxNameLength = 50

// Request carries the caller's description of the desired visualization.
type Request struct {
	Query               string `json:"query"`
	Name                string `json:"name,omitempty"`
	Theme               string `json:"theme,omitempty"`
	AccentColor         string `json:"accent_color,omitempty"`
	Resolution          string `json:"resolution,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// Validate checks the request's basic shape before it is accepted.
func (r Request) Validate() error {
	if r.Query == "" {
		return errors.New("query is required")
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	return nil
}

// DisplayName resolves the visualization name used for prompts and artifact
// naming: the caller's name when given, otherwise the leading runes of the
// query. Truncation counts runes so a multibyte query is never split mid-rune.
func (r Request) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	runes := []rune(r.Query)
	if len(runes) > maxNameLength {
		runes = runes[:maxNameLength]
	}
	return string(runes)
}

// Client is the slice of the conversational API the pipeline needs.
type Client interface {
	CreateConversation(ctx context.Context) (*claude.Conversation, error)
	SendMessage(ctx context.Context, prompt, conversationID string, opts claude.SendOptions) (string, error)
}

// Pool hands out pooled clients.
type Pool interface {
	Acquire() Client
}

// ClaudePool adapts *claude.Pool to the Pool interface.
type ClaudePool struct {
	*claude.Pool
}

func (p ClaudePool) Acquire() Client {
	return p.Pool.Acquire()
}

// Renderer turns generated text into a video artifact.
type Renderer interface {
	Render(ctx context.Context, text, name string) (string, error)
}

// PromptFunc builds the generation prompt from the request and resolved name.
type PromptFunc func(req Request, name string) string

// Options configures an Orchestrator.
type Options struct {
	Pool        Pool
	Store       *Store
	Renderer    Renderer
	BuildPrompt PromptFunc
	// SendTimeout bounds the streamed completion exchange. Zero means the
	// client default.
	SendTimeout time.Duration
	Logger      *zerolog.Logger
	// Sink receives streamed completion chunks as they arrive. May be nil.
	Sink io.Writer
}

// Orchestrator drives submitted jobs through generation and rendering in the
// background. The submitting caller gets the job identifier immediately and
// polls the Store for the outcome; once scheduled, a job runs to a terminal
// state and cannot be cancelled.
type Orchestrator struct {
	pool        Pool
	store       *Store
	renderer    Renderer
	buildPrompt PromptFunc
	sendTimeout time.Duration
	logger      zerolog.Logger
	sink        io.Writer

	wg sync.WaitGroup
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Pool == nil {
		return nil, errors.New("jobs: pool is required")
	}
	if opts.Store == nil {
		return nil, errors.New("jobs: store is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("jobs: renderer is required")
	}
	if opts.BuildPrompt == nil {
		return nil, errors.New("jobs: prompt builder is required")
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}
	return &Orchestrator{
		pool:        opts.Pool,
		store:       opts.Store,
		renderer:    opts.Renderer,
		buildPrompt: opts.BuildPrompt,
		sendTimeout: opts.SendTimeout,
		logger:      logger,
		sink:        opts.Sink,
	}, nil
}

// Submit registers a pending job, schedules its background unit of work and
// returns the job identifier without waiting for anything else.
func (o *Orchestrator) Submit(req Request) string {
	id := uuid.NewString()
	o.store.Create(id)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.process(id, req)
	}()
	return id
}

// Wait blocks until every in-flight job has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) process(id string, req Request) {
	// A fault anywhere in the pipeline must land the job in failed; a job is
	// never left pending.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("job_id", id).Interface("panic", r).Msg("jobs: pipeline panicked")
			o.store.Fail(id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx := context.Background()
	name := req.DisplayName()

	client := o.pool.Acquire()
	prompt := o.buildPrompt(req, name)

	conv, err := client.CreateConversation(ctx)
	if err != nil {
		o.fail(id, "create conversation", err)
		return
	}
	text, err := client.SendMessage(ctx, prompt, conv.UUID, claude.SendOptions{
		Timeout: o.sendTimeout,
		Sink:    o.sink,
	})
	if err != nil {
		o.fail(id, "generate", err)
		return
	}

	if _, err := o.renderer.Render(ctx, text, name); err != nil {
		o.fail(id, "render", err)
		return
	}

	o.store.Complete(id, Result{Filename: render.OutputName(name)})
	o.logger.Info().Str("job_id", id).Str("filename", render.OutputName(name)).Msg("jobs: completed")
}

func (o *Orchestrator) fail(id, stage string, err error) {
	o.logger.Error().Err(err).Str("job_id", id).Str("stage", stage).Msg("jobs: failed")
	o.store.Fail(id, err.Error())
}
