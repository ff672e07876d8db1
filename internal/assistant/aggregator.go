package assistant

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
	"github.com/ashureev/mutuelle-assistant/internal/source"
)

// Sources are the six data providers the assistant reads. User is mandatory
// for compilation; any handle may be nil, which reads as permanently absent.
type Sources struct {
	User      *source.Handle[domain.User]
	Member    *source.Handle[domain.MemberRecord]
	Dashboard *source.Handle[domain.Dashboard]
	Session   *source.Handle[domain.MutualSession]
	Exercise  *source.Handle[domain.Exercise]
	Config    *source.Handle[domain.MutualConfig]
}

// Aggregator merges the latest value of every source into a ChatContext.
// It never fails: a source in error contributes an absent slot.
type Aggregator struct {
	src    Sources
	logger *slog.Logger
}

// NewAggregator creates an aggregator over explicit source handles.
func NewAggregator(src Sources, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{src: src, logger: logger}
}

// Refresh re-fetches every source concurrently and returns the new snapshot.
// Fetch failures are logged and never abort the other fetches.
func (a *Aggregator) Refresh(ctx context.Context) ChatContext {
	var g errgroup.Group
	refreshSlot(ctx, &g, a.logger, a.src.User)
	refreshSlot(ctx, &g, a.logger, a.src.Member)
	refreshSlot(ctx, &g, a.logger, a.src.Dashboard)
	refreshSlot(ctx, &g, a.logger, a.src.Session)
	refreshSlot(ctx, &g, a.logger, a.src.Exercise)
	refreshSlot(ctx, &g, a.logger, a.src.Config)
	_ = g.Wait()
	return a.Snapshot()
}

// Snapshot returns the latest known value of every slot without fetching.
func (a *Aggregator) Snapshot() ChatContext {
	return ChatContext{
		UserInfo:      slot(a.logger, a.src.User),
		MemberData:    slot(a.logger, a.src.Member),
		DashboardData: slot(a.logger, a.src.Dashboard),
		SessionData:   slot(a.logger, a.src.Session),
		ExerciseData:  slot(a.logger, a.src.Exercise),
		ConfigData:    slot(a.logger, a.src.Config),
	}
}

// Subscribe calls fn with a fresh snapshot whenever any source changes.
// The returned function removes every underlying subscription.
func (a *Aggregator) Subscribe(fn func(ChatContext)) (unsubscribe func()) {
	notify := func() { fn(a.Snapshot()) }
	unsubs := []func(){
		watch(a.src.User, notify),
		watch(a.src.Member, notify),
		watch(a.src.Dashboard, notify),
		watch(a.src.Session, notify),
		watch(a.src.Exercise, notify),
		watch(a.src.Config, notify),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func refreshSlot[T any](ctx context.Context, g *errgroup.Group, logger *slog.Logger, h *source.Handle[T]) {
	if h == nil {
		return
	}
	g.Go(func() error {
		if err := h.Refresh(ctx); err != nil {
			logger.Warn("Source fetch failed, slot treated as absent",
				"slot", h.Name(),
				"error", err,
			)
		}
		return nil
	})
}

func slot[T any](logger *slog.Logger, h *source.Handle[T]) *T {
	if h == nil {
		return nil
	}
	st := h.Current()
	if st.Err != nil {
		logger.Debug("Source in error state", "slot", h.Name(), "error", st.Err)
		return nil
	}
	return st.Value
}

func watch[T any](h *source.Handle[T], notify func()) func() {
	if h == nil {
		return func() {}
	}
	return h.Subscribe(func(source.State[T]) { notify() })
}
