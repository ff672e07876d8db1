package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

var fixedNow = time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC)

func testCompiler() *Compiler {
	return NewCompiler(WithClock(func() time.Time { return fixedNow }), WithLocation(time.UTC))
}

func awa() *domain.User {
	return &domain.User{UserID: "u-awa", FirstName: "Awa", LastName: "Diallo", Role: domain.RoleMember}
}

func moussa() *domain.User {
	return &domain.User{UserID: "u-moussa", FirstName: "Moussa", LastName: "Traoré", Role: domain.RoleAdmin}
}

func visitor() *domain.User {
	return &domain.User{UserID: "u-fatou", FirstName: "Fatou", Role: domain.RoleVisitor}
}

func fullContext(user *domain.User) ChatContext {
	return ChatContext{
		UserInfo: user,
		MemberData: &domain.MemberRecord{
			MemberID:       "m-1",
			UserID:         user.UserID,
			EnrollmentPaid: 7500,
			EnrollmentDue:  10000,
			SolidarityPaid: 2000,
			SolidarityDue:  5000,
			SavingsTotal:   125000,
			LoanAmount:     300000,
			LoanRepaid:     75000,
		},
		DashboardData: &domain.Dashboard{
			MemberCount:      42,
			ActiveLoans:      7,
			TotalSavings:     3250000,
			TotalOutstanding: 1200000,
			SolidarityFund:   410000,
			PendingBailouts:  2,
		},
		SessionData: &domain.MutualSession{
			SessionID:  "s-10",
			ExerciseID: "e-2026",
			Name:       "Session d'octobre",
			Date:       fixedNow,
			Status:     domain.StatusInProgress,
		},
		ExerciseData: &domain.Exercise{
			ExerciseID: "e-2026",
			Name:       "Exercice 2026",
			StartDate:  time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC),
			Status:     domain.StatusInProgress,
		},
		ConfigData: &domain.MutualConfig{
			EnrollmentFee:          10000,
			SolidarityContribution: 5000,
			InterestRate:           5.5,
			LoanCoefficient:        3,
			ExerciseMonths:         12,
		},
	}
}

// stubAdapter stands in for the generative service.
type stubAdapter struct {
	mu      sync.Mutex
	openErr error
	reply   string
	sendErr error
	block   chan struct{}
	seeds   []agent.Seed
	sent    []string
}

func (a *stubAdapter) Open(_ context.Context, seed agent.Seed) (agent.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seeds = append(a.seeds, seed)
	if a.openErr != nil {
		return nil, a.openErr
	}
	return &stubSession{a: a}, nil
}

func (a *stubAdapter) setOpenErr(err error) {
	a.mu.Lock()
	a.openErr = err
	a.mu.Unlock()
}

func (a *stubAdapter) opens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seeds)
}

func (a *stubAdapter) sends() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

type stubSession struct{ a *stubAdapter }

func (s *stubSession) Send(ctx context.Context, text string) (string, error) {
	s.a.mu.Lock()
	s.a.sent = append(s.a.sent, text)
	block, reply, err := s.a.block, s.a.reply, s.a.sendErr
	s.a.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (s *stubSession) Close() error { return nil }

type stubGenerator struct {
	out string
	err error
}

func (g stubGenerator) Generate(context.Context, string) (string, error) {
	return g.out, g.err
}
