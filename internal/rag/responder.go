package rag

import (
	"context"
	"log/slog"
	"strings"

	"gopherai-docqa/internal/ai"
)

// Generator is the generative model: it completes a chat prompt.
type Generator interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// State is a step of the per-request pipeline.
type State int

const (
	StateValidated State = iota
	StateRetrieved
	StateComposed
	StateAnswered
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateRetrieved:
		return "retrieved"
	case StateComposed:
		return "composed"
	case StateAnswered:
		return "answered"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type ResponderOptions struct {
	TopK             int
	CondenseQuestion bool
	Logger           *slog.Logger
}

// Responder answers questions against one session's index and memory.
type Responder struct {
	generator Generator
	topK      int
	condense  bool
	logger    *slog.Logger
}

func NewResponder(generator Generator, opts ResponderOptions) *Responder {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Responder{
		generator: generator,
		topK:      opts.TopK,
		condense:  opts.CondenseQuestion,
		logger:    opts.Logger,
	}
}

// Request is one chat call. Generator overrides the responder default when set.
type Request struct {
	SessionID string
	Index     *Index
	Memory    *Memory
	Question  string
	Generator Generator
}

type Response struct {
	Answer             string           `json:"answer"`
	StandaloneQuestion string           `json:"standalone_question,omitempty"`
	Matches            []Match          `json:"matches"`
	Messages           []ai.ChatMessage `json:"-"`
	State              State            `json:"-"`
}

// Respond runs validate, retrieve, compose and answer. Memory is appended only
// after the model succeeds, so a failed request leaves the conversation as it
// was. Callers serialize requests per session.
func (r *Responder) Respond(ctx context.Context, req Request) (*Response, error) {
	log := r.logger.With("session_id", req.SessionID)
	question := strings.TrimSpace(req.Question)
	if req.Index == nil || req.Memory == nil {
		log.Debug("rag request", "state", StateRejected, "reason", "no conversation")
		return &Response{State: StateRejected}, ErrNoConversation
	}
	if question == "" {
		log.Debug("rag request", "state", StateRejected, "reason", "empty question")
		return &Response{State: StateRejected}, ErrInvalidQuestion
	}
	generator := r.generator
	if req.Generator != nil {
		generator = req.Generator
	}
	log.Debug("rag request", "state", StateValidated)

	history := req.Memory.History()
	retrievalQuery := question
	resp := &Response{State: StateValidated}
	if r.condense && len(history) > 0 {
		standalone, err := generator.Complete(ctx, CondenseMessages(history, question))
		if err != nil {
			resp.State = StateFailed
			return resp, providerError("condense question", err)
		}
		if s := strings.TrimSpace(standalone); s != "" {
			retrievalQuery = s
			resp.StandaloneQuestion = s
		}
	}

	matches, err := req.Index.Search(ctx, retrievalQuery, r.topK)
	if err != nil {
		resp.State = StateFailed
		log.Debug("rag request", "state", StateFailed, "stage", "retrieve")
		return resp, err
	}
	resp.Matches = matches
	resp.State = StateRetrieved
	log.Debug("rag request", "state", StateRetrieved, "matches", len(matches))

	resp.Messages = ComposeMessages(matches, history, question)
	resp.State = StateComposed
	log.Debug("rag request", "state", StateComposed, "messages", len(resp.Messages))

	answer, err := generator.Complete(ctx, resp.Messages)
	if err != nil {
		resp.State = StateFailed
		log.Debug("rag request", "state", StateFailed, "stage", "answer")
		return resp, providerError("complete", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		resp.State = StateFailed
		log.Debug("rag request", "state", StateFailed, "stage", "answer", "reason", "empty completion")
		return resp, providerError("complete", ErrEmptyCompletion)
	}

	req.Memory.Append(question, answer)
	resp.Answer = answer
	resp.State = StateAnswered
	log.Debug("rag request", "state", StateAnswered)
	return resp, nil
}
