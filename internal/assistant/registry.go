package assistant

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
	"github.com/ashureev/mutuelle-assistant/internal/domain"
	"github.com/ashureev/mutuelle-assistant/internal/source"
	"github.com/ashureev/mutuelle-assistant/internal/store"
)

// Builder creates the manager for one user. The registry starts it.
type Builder func(userID string) *Manager

// BuilderConfig holds what every per-user manager shares.
type BuilderConfig struct {
	Repo              store.Repository
	Provider          agent.Provider
	InitTimeout       time.Duration
	SendTimeout       time.Duration
	SuggestionTimeout time.Duration
	Logger            *slog.Logger
}

// NewStoreSources binds the six source handles of a user to the repository.
func NewStoreSources(repo store.Repository, userID string) Sources {
	return Sources{
		User: source.New[domain.User]("user", func(ctx context.Context) (*domain.User, error) {
			return repo.GetUser(ctx, userID)
		}),
		Member: source.New[domain.MemberRecord]("member", func(ctx context.Context) (*domain.MemberRecord, error) {
			return repo.GetMemberByUser(ctx, userID)
		}),
		Dashboard: source.New[domain.Dashboard]("dashboard", repo.GetDashboard),
		Session:   source.New[domain.MutualSession]("session", repo.GetCurrentSession),
		Exercise:  source.New[domain.Exercise]("exercise", repo.GetCurrentExercise),
		Config:    source.New[domain.MutualConfig]("config", repo.GetMutualConfig),
	}
}

// NewBuilder returns a Builder backed by the store and a generative provider.
func NewBuilder(cfg BuilderConfig) Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(userID string) *Manager {
		compiler := NewCompiler(WithCompilerLogger(logger))
		return NewManager(Options{
			UserID:      userID,
			Aggregator:  NewAggregator(NewStoreSources(cfg.Repo, userID), logger.With("user_id", userID)),
			Compiler:    compiler,
			Adapter:     cfg.Provider,
			Suggestions: NewEngine(cfg.Provider, compiler, cfg.SuggestionTimeout, logger),
			InitTimeout: cfg.InitTimeout,
			SendTimeout: cfg.SendTimeout,
			Logger:      logger,
		})
	}
}

type registryEntry struct {
	mgr      *Manager
	lastSeen time.Time
}

// Registry owns one Manager per signed-in user.
type Registry struct {
	build  Builder
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(build Builder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		build:   build,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// GetOrCreate returns the user's manager, creating and starting it on first
// use. A new manager gets an initial source refresh in the background, which
// triggers auto-initialization once the identity source answers.
func (r *Registry) GetOrCreate(userID string) (*Manager, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.entries[userID]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.mgr, nil
	}

	mgr := r.build(userID)
	r.entries[userID] = &registryEntry{mgr: mgr, lastSeen: r.now()}
	r.wg.Add(1)
	r.mu.Unlock()

	mgr.Start()
	go func() {
		defer r.wg.Done()
		mgr.RefreshContext(mgr.ctx)
	}()

	r.logger.Info("Assistant registered", "user_id", userID)
	return mgr, nil
}

// Get returns the user's manager without creating one.
func (r *Registry) Get(userID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.mgr, true
}

// Touch records activity for the user.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[userID]; ok {
		e.lastSeen = r.now()
	}
}

// Remove closes and forgets the user's manager.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	delete(r.entries, userID)
	r.mu.Unlock()

	if ok {
		e.mgr.Close()
		r.logger.Info("Assistant removed", "user_id", userID)
	}
}

// removeIdle removes the user's manager only if it is still idle past ttl.
func (r *Registry) removeIdle(userID string, ttl time.Duration) bool {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok || !e.lastSeen.Before(r.now().Add(-ttl)) {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, userID)
	r.mu.Unlock()

	e.mgr.Close()
	return true
}

// Len returns the number of live managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// idleSince lists users whose last activity is older than ttl.
func (r *Registry) idleSince(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()

	var users []string
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			users = append(users, id)
		}
	}
	return users
}

// Close closes every manager and rejects further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.mgr.Close()
	}
	r.wg.Wait()
}
