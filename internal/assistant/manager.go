package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
)

// ApologyMessage replaces the model's reply when a send fails.
const ApologyMessage = "Désolé, je rencontre des difficultés pour répondre pour le moment. Veuillez réessayer dans quelques instants."

// ErrSendFailed wraps a service failure during SendMessage. The session stays
// usable: an apology was appended and the state is back to ready.
var ErrSendFailed = errors.New("assistant send failed")

// Options wires a Manager to its collaborators.
type Options struct {
	UserID      string
	Aggregator  *Aggregator
	Compiler    *Compiler
	Adapter     agent.SessionAdapter
	Suggestions *Engine

	// InitTimeout bounds source refresh plus session open. Zero disables it.
	InitTimeout time.Duration
	// SendTimeout bounds one message exchange. Zero disables it.
	SendTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Manager is the session state machine behind one chat UI.
// Initialization and sends are rejected, never queued, while another is in flight.
type Manager struct {
	userID      string
	agg         *Aggregator
	compiler    *Compiler
	adapter     agent.SessionAdapter
	engine      *Engine
	initTimeout time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	messages    []ChatMessage
	suggestions []string
	lastErr     string
	hasError    bool
	session     agent.Session
	generation  uint64
	closed      bool
	subs        map[int]func(Snapshot)
	nextSub     int
	unsubscribe func()
}

// NewManager creates an idle manager. Call Start to arm auto-initialization.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("user_id", opts.UserID)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	compiler := opts.Compiler
	if compiler == nil {
		compiler = NewCompiler(WithClock(now), WithCompilerLogger(logger))
	}
	engine := opts.Suggestions
	if engine == nil {
		engine = NewEngine(nil, compiler, 0, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		userID:      opts.UserID,
		agg:         opts.Aggregator,
		compiler:    compiler,
		adapter:     opts.Adapter,
		engine:      engine,
		initTimeout: opts.InitTimeout,
		sendTimeout: opts.SendTimeout,
		logger:      logger,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		subs:        make(map[int]func(Snapshot)),
	}
}

// Start subscribes to the aggregator so that identity becoming available
// fires IdentityAvailable. It also checks the current snapshot once.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.closed || m.unsubscribe != nil {
		m.mu.Unlock()
		return
	}
	m.unsubscribe = m.agg.Subscribe(func(cc ChatContext) {
		if cc.HasIdentity() {
			m.IdentityAvailable()
		}
	})
	m.mu.Unlock()

	if m.agg.Snapshot().HasIdentity() {
		m.IdentityAvailable()
	}
}

// IdentityAvailable starts a background initialization if the manager is
// idle. Repeated events while initializing or ready are ignored.
func (m *Manager) IdentityAvailable() {
	m.mu.Lock()
	if m.closed || m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	gen := m.beginInitLocked()
	snap := m.snapshotLocked()
	m.wg.Add(1)
	m.mu.Unlock()
	m.notify(snap)

	m.logger.Debug("Identity available, initializing assistant")
	go func() {
		defer m.wg.Done()
		if err := m.runInit(m.ctx, gen); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("Assistant auto-initialization failed", "error", err)
		}
	}()
}

// Initialize refreshes every source, compiles the prompt and opens a session.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateInitializing:
		m.mu.Unlock()
		return ErrBusy
	case m.state != StateIdle:
		m.mu.Unlock()
		return ErrNotIdle
	}
	gen := m.beginInitLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	return m.runInit(ctx, gen)
}

func (m *Manager) beginInitLocked() uint64 {
	m.state = StateInitializing
	return m.generation
}

func (m *Manager) runInit(ctx context.Context, gen uint64) error {
	if m.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.initTimeout)
		defer cancel()
	}

	cc := m.agg.Refresh(ctx)
	if !cc.HasIdentity() {
		m.failInit(gen, ErrNoIdentity)
		return ErrNoIdentity
	}

	seed := agent.Seed{
		UserID:         m.userID,
		Prompt:         m.compiler.SafeCompile(cc),
		Acknowledgment: m.compiler.Acknowledgment(cc),
	}
	sess, err := m.adapter.Open(ctx, seed)
	if err != nil {
		err = fmt.Errorf("open session: %w", err)
		m.failInit(gen, err)
		return err
	}

	m.mu.Lock()
	if m.closed || gen != m.generation {
		closed := m.closed
		m.mu.Unlock()
		// Superseded by Reset or Close while opening.
		if cerr := sess.Close(); cerr != nil {
			m.logger.Debug("Failed to close superseded session", "error", cerr)
		}
		if closed {
			return ErrClosed
		}
		return nil
	}
	m.session = sess
	m.state = StateReady
	m.messages = append(m.messages, m.newMessage(welcomeMessage(cc), false))
	m.startSuggestionsLocked(gen, cc)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	m.logger.Info("Assistant session ready", "role", string(cc.Role()))
	return nil
}

func (m *Manager) failInit(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.lastErr = err.Error()
	m.hasError = true
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	m.logger.Warn("Assistant initialization failed", "error", err)
}

func (m *Manager) startSuggestionsLocked(gen uint64, cc ChatContext) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		list := m.engine.Generate(m.ctx, cc)

		m.mu.Lock()
		if m.closed || gen != m.generation {
			m.mu.Unlock()
			return
		}
		m.suggestions = list
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
	}()
}

// SendMessage appends text as a user message, forwards it and appends the
// formatted reply. It is rejected without side effects unless the manager is
// ready and text is non-blank.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateSending || m.state == StateInitializing:
		m.mu.Unlock()
		return ErrBusy
	case m.state != StateReady || m.session == nil:
		m.mu.Unlock()
		return ErrNotReady
	}
	m.state = StateSending
	m.lastErr = ""
	m.hasError = false
	m.messages = append(m.messages, m.newMessage(text, true))
	sess := m.session
	gen := m.generation
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	sendCtx := ctx
	if m.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, m.sendTimeout)
		defer cancel()
	}
	reply, sendErr := sess.Send(sendCtx, text)

	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	m.state = StateReady
	if sendErr != nil {
		m.messages = append(m.messages, m.newMessage(ApologyMessage, false))
		m.lastErr = sendErr.Error()
		m.hasError = true
	} else {
		m.messages = append(m.messages, m.newMessage(Format(reply), false))
	}
	snap = m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)

	if sendErr != nil {
		m.logger.Warn("Assistant send failed, apology appended", "error", sendErr)
		return fmt.Errorf("%w: %w", ErrSendFailed, sendErr)
	}
	return nil
}

// UseSuggestion sends a suggestion verbatim.
func (m *Manager) UseSuggestion(ctx context.Context, suggestion string) error {
	return m.SendMessage(ctx, suggestion)
}

// Reset discards the session, messages, suggestions and error, returns to
// idle and re-initializes. In-flight work from before the reset is dropped.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.generation++
	old := m.session
	m.session = nil
	m.messages = nil
	m.suggestions = nil
	m.lastErr = ""
	m.hasError = false
	m.state = StateIdle
	idle := m.snapshotLocked()
	gen := m.beginInitLocked()
	initializing := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(idle)
	m.notify(initializing)

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Debug("Failed to close previous session", "error", err)
		}
	}
	m.logger.Info("Assistant reset")
	return m.runInit(ctx, gen)
}

// RefreshContext re-pulls every source and returns the new context. Identity
// showing up for the first time triggers initialization through Start.
func (m *Manager) RefreshContext(ctx context.Context) ChatContext {
	return m.agg.Refresh(ctx)
}

// Snapshot returns the UI-facing view of the manager.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to receive a snapshot after every change.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Wait blocks until background initialization and suggestion work finishes.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops background work and releases the session.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	sess := m.session
	m.session = nil
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.wg.Wait()
	if sess != nil {
		if err := sess.Close(); err != nil {
			m.logger.Debug("Failed to close session", "error", err)
		}
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:      append([]ChatMessage{}, m.messages...),
		Suggestions:   append([]string{}, m.suggestions...),
		State:         m.state,
		IsLoading:     m.state == StateInitializing || m.state == StateSending,
		IsInitialized: m.session != nil,
		Error:         m.lastErr,
		HasError:      m.hasError,
	}
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.Lock()
	subs := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (m *Manager) newMessage(content string, isUser bool) ChatMessage {
	return ChatMessage{
		ID:        newMessageID(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: m.now(),
	}
}

// newMessageID returns a time-ordered UUIDv7.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func welcomeMessage(cc ChatContext) string {
	name := cc.UserInfo.DisplayName()
	if cc.Role().IsAdmin() {
		return fmt.Sprintf("Bonjour %s ! 👋 Je suis votre assistant de gestion de la mutuelle. "+
			"En tant qu'administrateur, je peux vous aider à suivre la trésorerie, les sessions, "+
			"les emprunts des membres et les renflouements. Que souhaitez-vous savoir ?", name)
	}
	return fmt.Sprintf("Bonjour %s ! 👋 Je suis votre assistant personnel de la mutuelle. "+
		"Je peux vous aider à comprendre votre situation financière, vos épargnes, vos emprunts "+
		"et le fonctionnement de la mutuelle. Comment puis-je vous aider ?", name)
}
