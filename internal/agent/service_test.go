package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type stubProvider struct {
	mu     sync.Mutex
	seeds  []Seed
	reply  string
	err    error
	closed bool
}

func (p *stubProvider) Open(_ context.Context, seed Seed) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeds = append(p.seeds, seed)
	return &stubSession{p: p}, nil
}

func (p *stubProvider) Generate(context.Context, string) (string, error) {
	return p.reply, p.err
}

func (p *stubProvider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

type stubSession struct{ p *stubProvider }

func (s *stubSession) Send(context.Context, string) (string, error) { return s.p.reply, s.p.err }
func (s *stubSession) Close() error                                 { return nil }

type recordingLogger struct {
	mu     sync.Mutex
	events []ConversationLogEvent
}

func (l *recordingLogger) Log(e ConversationLogEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *recordingLogger) Close() error { return nil }

func (l *recordingLogger) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestSeedTurnsOrder(t *testing.T) {
	t.Parallel()

	turns := Seed{Prompt: "prompt", Acknowledgment: "ack"}.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 seed turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Text != "prompt" {
		t.Fatalf("unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != RoleModel || turns[1].Text != "ack" {
		t.Fatalf("unexpected second turn: %+v", turns[1])
	}
}

func TestServiceLogsExchange(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{reply: "Salut"}
	log := &recordingLogger{}
	svc := NewService(provider, log)

	sess, err := svc.Open(context.Background(), Seed{UserID: "u1", Prompt: "p", Acknowledgment: "a"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	reply, err := sess.Send(context.Background(), "Bonjour")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if reply != "Salut" {
		t.Fatalf("unexpected reply %q", reply)
	}

	want := []string{EventSessionOpened, EventUserMessage, EventAssistantMessage}
	got := log.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if log.events[1].SessionID == "" || log.events[1].SessionID != log.events[2].SessionID {
		t.Fatalf("expected a shared non-empty session id, got %q / %q", log.events[1].SessionID, log.events[2].SessionID)
	}
}

func TestServiceLogsSendFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("unreachable")
	provider := &stubProvider{err: boom}
	log := &recordingLogger{}
	svc := NewService(provider, log)

	sess, err := svc.Open(context.Background(), Seed{UserID: "u1"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := sess.Send(context.Background(), "Bonjour"); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	got := log.types()
	if got[len(got)-1] != EventSendFailed {
		t.Fatalf("expected last event %q, got %v", EventSendFailed, got)
	}

	svc.Close()
	if !provider.closed {
		t.Fatal("expected provider to be closed")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Provider: "openai"}, nil)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Provider: "Gemini"}, nil); err == nil {
		t.Fatal("expected error without API key")
	}
}
