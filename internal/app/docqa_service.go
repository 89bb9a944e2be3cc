package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/session"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrFileTooLarge    = errors.New("file too large")
	ErrSessionNotFound = fmt.Errorf("chat: %w", session.ErrNotFound)
	ErrTimeout         = errors.New("request timed out")
	ErrAuditDisabled   = errors.New("transcript audit is disabled")
)

const uploadSuccessMessage = "File uploaded and processed successfully"

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]rag.Turn, bool, error)
	SetHistory(ctx context.Context, sessionID string, turns []rag.Turn) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

type TranscriptPublisher interface {
	Publish(ctx context.Context, entry model.TranscriptEntry) error
}

type TranscriptReader interface {
	ListBySessionID(sessionID string, limit int) ([]model.TranscriptEntry, error)
}

// DocQADeps are the collaborators of DocQAService. History, Publisher,
// Transcripts and ModelOverride are optional.
type DocQADeps struct {
	Registry   *session.Registry
	Extractors *extract.Registry
	Embedder   rag.Embedder
	Generator  rag.Generator
	// ModelOverride returns a generator bound to a caller-selected model.
	ModelOverride func(model string) rag.Generator
	DefaultModel  string
	History       HistoryCache
	Publisher     TranscriptPublisher
	Transcripts   TranscriptReader
	Logger        *slog.Logger
}

type DocQAOptions struct {
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxHistoryTurns  int
	CondenseQuestion bool
	RequestTimeout   time.Duration
	MaxUploadBytes   int64
}

type DocQAService struct {
	registry      *session.Registry
	extractors    *extract.Registry
	embedder      rag.Embedder
	chunker       *rag.Chunker
	responder     *rag.Responder
	modelOverride func(model string) rag.Generator
	defaultModel  string
	history       HistoryCache
	publisher     TranscriptPublisher
	transcripts   TranscriptReader
	logger        *slog.Logger

	maxHistoryTurns int
	requestTimeout  time.Duration
	maxUploadBytes  int64
}

func NewDocQAService(deps DocQADeps, opts DocQAOptions) *DocQAService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocQAService{
		registry:   deps.Registry,
		extractors: deps.Extractors,
		embedder:   deps.Embedder,
		chunker:    rag.NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		responder: rag.NewResponder(deps.Generator, rag.ResponderOptions{
			TopK:             opts.TopK,
			CondenseQuestion: opts.CondenseQuestion,
			Logger:           logger,
		}),
		modelOverride:   deps.ModelOverride,
		defaultModel:    deps.DefaultModel,
		history:         deps.History,
		publisher:       deps.Publisher,
		transcripts:     deps.Transcripts,
		logger:          logger,
		maxHistoryTurns: opts.MaxHistoryTurns,
		requestTimeout:  opts.RequestTimeout,
		maxUploadBytes:  opts.MaxUploadBytes,
	}
}

type UploadInput struct {
	Filename string
	// TypeTag wins over the file extension when set.
	TypeTag string
	Body    io.Reader
}

type UploadResult struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	DocumentName string `json:"document_name"`
	DocumentType string `json:"document_type"`
	ChunkCount   int    `json:"chunk_count"`
}

// Upload extracts, chunks and indexes a document and registers a new session
// for it. Nothing is registered unless every step succeeds.
func (s *DocQAService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.Body == nil {
		return nil, ErrInvalidInput
	}
	typ, err := resolveType(input.TypeTag, input.Filename)
	if err != nil {
		return nil, err
	}

	body := input.Body
	if s.maxUploadBytes > 0 {
		body = &limitedReader{r: body, remaining: s.maxUploadBytes}
	}
	text, err := s.extractors.Extract(ctx, typ, body)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, ErrFileTooLarge
		}
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, rag.ErrEmptyDocument
	}

	name := strings.TrimSpace(input.Filename)
	if name == "" {
		name = "Untitled"
	}
	chunks := s.chunker.Split(text)
	for i := range chunks {
		chunks[i].Source = name
	}
	index, err := rag.Build(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}

	sess := s.registry.Create(session.Spec{
		DocumentName: name,
		DocumentType: typ.String(),
		Index:        index,
		Memory:       rag.NewMemory(s.maxHistoryTurns),
	})
	s.logger.Info("document indexed",
		"session_id", sess.ID,
		"document", name,
		"type", typ.String(),
		"chunks", index.Len(),
		"dimension", index.Dimension(),
	)

	return &UploadResult{
		SessionID:    sess.ID,
		Message:      uploadSuccessMessage,
		DocumentName: name,
		DocumentType: typ.String(),
		ChunkCount:   index.Len(),
	}, nil
}

type ChatInput struct {
	SessionID string
	Query     string
	// Model selects a different model on the shared client for this request.
	Model string
}

type ChatResult struct {
	Answer             string      `json:"answer"`
	StandaloneQuestion string      `json:"standalone_question,omitempty"`
	Sources            []rag.Match `json:"sources"`
}

// Chat answers a question against the session's document. Requests on the same
// session run one at a time.
func (s *DocQAService) Chat(ctx context.Context, input ChatInput) (*ChatResult, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	query := strings.TrimSpace(input.Query)
	if sessionID == "" || query == "" {
		return nil, ErrInvalidInput
	}

	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	var generator rag.Generator
	modelName := s.defaultModel
	if m := strings.TrimSpace(input.Model); m != "" && s.modelOverride != nil {
		generator = s.modelOverride(m)
		modelName = m
	}

	sess.Lock()
	defer sess.Unlock()

	reqCtx := ctx
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	resp, err := s.responder.Respond(reqCtx, rag.Request{
		SessionID: sess.ID,
		Index:     sess.Index,
		Memory:    sess.Memory,
		Question:  query,
		Generator: generator,
	})
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		if errors.Is(err, rag.ErrInvalidQuestion) {
			return nil, ErrInvalidInput
		}
		return nil, err
	}

	s.recordTurn(context.WithoutCancel(ctx), sess, modelName, query, resp)

	return &ChatResult{
		Answer:             resp.Answer,
		StandaloneQuestion: resp.StandaloneQuestion,
		Sources:            resp.Matches,
	}, nil
}

// recordTurn invalidates the history mirror and publishes the transcript.
// Failures are logged only; the turn is already in memory.
func (s *DocQAService) recordTurn(ctx context.Context, sess *session.Session, modelName, question string, resp *rag.Response) {
	if s.history != nil {
		if err := s.history.MarkDirty(ctx, sess.ID); err != nil {
			s.logger.Warn("mark history dirty failed", "session_id", sess.ID, "error", err)
		}
		if err := s.history.DeleteHistory(ctx, sess.ID); err != nil {
			s.logger.Warn("invalidate history cache failed", "session_id", sess.ID, "error", err)
		}
	}
	if s.publisher == nil {
		return
	}

	refs := make([]string, len(resp.Matches))
	for i, m := range resp.Matches {
		refs[i] = strconv.Itoa(m.Chunk.Position)
	}
	entry := model.TranscriptEntry{
		ID:           ulid.Make().String(),
		SessionID:    sess.ID,
		DocumentName: sess.DocumentName,
		DocumentType: sess.DocumentType,
		Model:        modelName,
		Question:     question,
		Answer:       resp.Answer,
		ChunkRefs:    strings.Join(refs, ","),
		CreatedAt:    time.Now(),
	}
	if err := s.publisher.Publish(ctx, entry); err != nil {
		s.logger.Warn("publish transcript failed", "session_id", sess.ID, "entry_id", entry.ID, "error", err)
	}
}

// History returns the session's turns, oldest first, preferring the Redis
// mirror when it is clean.
func (s *DocQAService) History(ctx context.Context, sessionID string) ([]rag.Turn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	sess, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	if s.history != nil {
		dirty, err := s.history.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.history.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	// Chat appends and invalidates under the session lock, so the mirror is
	// only repopulated while no turn can land in between.
	sess.Lock()
	defer sess.Unlock()
	turns := sess.Memory.History()
	if s.history != nil {
		if dirty, dirtyErr := s.history.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.history.SetHistory(ctx, sessionID, turns)
		}
	}
	return turns, nil
}

// Transcript lists the persisted audit entries of a session.
func (s *DocQAService) Transcript(_ context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	if s.transcripts == nil {
		return nil, ErrAuditDisabled
	}
	return s.transcripts.ListBySessionID(sessionID, limit)
}

func (s *DocQAService) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrInvalidInput
	}
	if !s.registry.Delete(sessionID) {
		return ErrSessionNotFound
	}
	if s.history != nil {
		_ = s.history.DeleteHistory(ctx, sessionID)
	}
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

func (s *DocQAService) SessionCount() int {
	return s.registry.Len()
}

func resolveType(tag, filename string) (extract.Type, error) {
	if strings.TrimSpace(tag) != "" {
		return extract.ParseType(tag)
	}
	return extract.TypeFromFilename(filename)
}

// limitedReader fails with ErrFileTooLarge once more than remaining bytes
// have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrFileTooLarge
	}
	return n, err
}
