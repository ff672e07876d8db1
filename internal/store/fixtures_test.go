package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

func TestFixturesApply(t *testing.T) {
	t.Parallel()

	f, err := os.Open("testdata/seed.yaml")
	require.NoError(t, err)
	defer f.Close()

	fx, err := DecodeFixtures(f)
	require.NoError(t, err)
	require.Len(t, fx.Users, 3)

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, fx.Apply(ctx, s))
	require.NoError(t, fx.Apply(ctx, s), "seeding twice is harmless")

	admin, err := s.GetUser(ctx, "u-moussa")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.Role.IsAdmin())

	member, err := s.GetMemberByUser(ctx, "u-awa")
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, 2025, member.JoinedAt.UTC().Year())

	session, err := s.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "s-10", session.SessionID)

	exercise, err := s.GetCurrentExercise(ctx)
	require.NoError(t, err)
	require.NotNil(t, exercise)
	assert.Equal(t, domain.StatusInProgress, exercise.Status)

	dash, err := s.GetDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.MemberCount)
}

func TestDecodeFixturesRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":     "userz: []\n",
		"orphan member":   "members:\n  - member_id: m-1\n    user_id: ghost\n",
		"user without id": "users:\n  - first_name: Awa\n    role: MEMBRE\n",
		"session no id":   "sessions:\n  - name: Octobre\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeFixtures(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	fx, err := DecodeFixtures(strings.NewReader(""))
	require.NoError(t, err, "an empty document seeds nothing")
	assert.Empty(t, fx.Users)
}
