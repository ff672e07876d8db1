package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "mutuelle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreNotFoundIsNil(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)

	member, err := s.GetMemberByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, member)

	session, err := s.GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	exercise, err := s.GetCurrentExercise(ctx)
	require.NoError(t, err)
	assert.Nil(t, exercise)

	cfg, err := s.GetMutualConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	dash, err := s.GetDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.Dashboard{}, dash, "an empty association still has a dashboard")
}

func TestStoreUserAndMember(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &domain.User{
		UserID: "u-awa", FirstName: "Awa", LastName: "Diallo", Email: "awa@example.org", Role: domain.RoleMember,
	}))
	require.NoError(t, s.UpsertUser(ctx, &domain.User{
		UserID: "u-awa", FirstName: "Awa", LastName: "Diallo-Sow", Role: domain.RoleMember,
	}))

	user, err := s.GetUser(ctx, "u-awa")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Diallo-Sow", user.LastName)
	assert.Equal(t, domain.RoleMember, user.Role)
	assert.False(t, user.CreatedAt.IsZero())

	require.NoError(t, s.UpsertMember(ctx, &domain.MemberRecord{
		MemberID: "m-1", UserID: "u-awa", EnrollmentPaid: 7500, EnrollmentDue: 10000,
		SavingsTotal: 125000, LoanAmount: 300000, LoanRepaid: 75000,
	}))
	member, err := s.GetMemberByUser(ctx, "u-awa")
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, "m-1", member.MemberID)
	assert.InDelta(t, 225000, member.LoanAmount-member.LoanRepaid, 0.001)
}

func TestStoreDashboardAggregates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	members := []domain.MemberRecord{
		{MemberID: "m-1", UserID: "u-1", SavingsTotal: 100000, SolidarityPaid: 5000, LoanAmount: 300000, LoanRepaid: 75000},
		{MemberID: "m-2", UserID: "u-2", SavingsTotal: 50000, SolidarityPaid: 2000, LoanAmount: 100000, LoanRepaid: 100000, BailoutOwed: 3000},
		{MemberID: "m-3", UserID: "u-3", SavingsTotal: 25000, SolidarityPaid: 5000},
	}
	for i := range members {
		require.NoError(t, s.UpsertMember(ctx, &members[i]))
	}

	dash, err := s.GetDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dash.MemberCount)
	assert.Equal(t, 1, dash.ActiveLoans)
	assert.InDelta(t, 175000, dash.TotalSavings, 0.001)
	assert.InDelta(t, 225000, dash.TotalOutstanding, 0.001)
	assert.InDelta(t, 12000, dash.SolidarityFund, 0.001)
	assert.Equal(t, 1, dash.PendingBailouts)
}

func TestStoreCurrentSessionAndExercise(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	day := func(m time.Month, d int) time.Time { return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC) }

	for _, ms := range []domain.MutualSession{
		{SessionID: "s-8", ExerciseID: "e-2026", Name: "Août", Date: day(time.August, 16), Status: domain.StatusClosed},
		{SessionID: "s-9", ExerciseID: "e-2026", Name: "Septembre", Date: day(time.September, 20), Status: domain.StatusInProgress},
		{SessionID: "s-11", ExerciseID: "e-2026", Name: "Novembre", Date: day(time.November, 15), Status: domain.StatusPlanned},
	} {
		require.NoError(t, s.UpsertSession(ctx, &ms))
	}

	session, err := s.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "s-9", session.SessionID, "an in-progress session wins over a later planned one")
	assert.True(t, session.Date.Equal(day(time.September, 20)))

	require.NoError(t, s.UpsertSession(ctx, &domain.MutualSession{
		SessionID: "s-9", ExerciseID: "e-2026", Name: "Septembre", Date: day(time.September, 20), Status: domain.StatusClosed,
	}))
	session, err = s.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "s-11", session.SessionID)

	require.NoError(t, s.UpsertExercise(ctx, &domain.Exercise{
		ExerciseID: "e-2025", Name: "Exercice 2025", StartDate: day(time.January, 1).AddDate(-1, 0, 0),
		EndDate: day(time.January, 1).AddDate(0, 0, -1), Status: domain.StatusClosed,
	}))
	require.NoError(t, s.UpsertExercise(ctx, &domain.Exercise{
		ExerciseID: "e-2026", Name: "Exercice 2026", StartDate: day(time.January, 5), Status: domain.StatusInProgress,
	}))

	exercise, err := s.GetCurrentExercise(ctx)
	require.NoError(t, err)
	require.NotNil(t, exercise)
	assert.Equal(t, "e-2026", exercise.ExerciseID)
	assert.True(t, exercise.EndDate.IsZero(), "open-ended exercise keeps a zero end date")
}

func TestStoreMutualConfig(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMutualConfig(ctx, &domain.MutualConfig{
		EnrollmentFee: 10000, SolidarityContribution: 5000, InterestRate: 5.5, LoanCoefficient: 3, ExerciseMonths: 12,
	}))
	require.NoError(t, s.SaveMutualConfig(ctx, &domain.MutualConfig{
		EnrollmentFee: 12000, SolidarityContribution: 5000, InterestRate: 5.5, LoanCoefficient: 3, ExerciseMonths: 12,
	}))

	cfg, err := s.GetMutualConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.InDelta(t, 12000, cfg.EnrollmentFee, 0.001)
	assert.Equal(t, 12, cfg.ExerciseMonths)
	require.NoError(t, s.Ping(ctx))
}
