package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gopherai-docqa/internal/rag"
)

var ErrNotFound = errors.New("session not found")

// Spec describes a session to register. Index and Memory are owned by the
// session from then on.
type Spec struct {
	DocumentName string
	DocumentType string
	Index        *rag.Index
	Memory       *rag.Memory
}

// Session binds one uploaded document's index to its conversation.
type Session struct {
	ID           string
	DocumentName string
	DocumentType string
	CreatedAt    time.Time
	Index        *rag.Index
	Memory       *rag.Memory

	mu       sync.Mutex
	lastUsed atomic.Int64
}

// Lock serializes chat requests on the session.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) Touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

type Options struct {
	// TTL is the idle time after which Sweep evicts a session. Zero disables.
	TTL           time.Duration
	SweepInterval time.Duration
	// MaxSessions caps the registry; Create evicts the least recently used
	// session when exceeded. Zero means no cap.
	MaxSessions int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Registry maps session ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl           time.Duration
	sweepInterval time.Duration
	maxSessions   int
	logger        *slog.Logger
	now           func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(opts Options) *Registry {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		sessions:      make(map[string]*Session),
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		maxSessions:   opts.MaxSessions,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// Create registers a new session under a random UUIDv4.
func (r *Registry) Create(spec Spec) *Session {
	now := r.now()
	s := &Session{
		ID:           uuid.NewString(),
		DocumentName: spec.DocumentName,
		DocumentType: spec.DocumentType,
		CreatedAt:    now,
		Index:        spec.Index,
		Memory:       spec.Memory,
	}
	s.Touch(now)

	r.mu.Lock()
	r.sessions[s.ID] = s
	var evicted string
	if r.maxSessions > 0 && len(r.sessions) > r.maxSessions {
		evicted = r.evictOldestLocked(s.ID)
	}
	r.mu.Unlock()

	if evicted != "" {
		r.logger.Info("session evicted", "session_id", evicted, "reason", "capacity")
	}
	return s
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Touch(r.now())
	return s, nil
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.logger.Info("session evicted", "session_id", id, "reason", "idle")
	}
	return expired
}

// Start runs the idle-session janitor until ctx is done or Close is called.
func (r *Registry) Start(ctx context.Context) {
	if r.cancel != nil || r.ttl <= 0 {
		return
	}
	janitorCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-janitorCtx.Done():
				return
			case <-ticker.C:
				r.Sweep(r.now())
			}
		}
	}()
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Registry) evictOldestLocked(keep string) string {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range r.sessions {
		if id == keep {
			continue
		}
		if used := s.LastUsed(); oldestID == "" || used.Before(oldest) {
			oldestID, oldest = id, used
		}
	}
	if oldestID != "" {
		delete(r.sessions, oldestID)
	}
	return oldestID
}
