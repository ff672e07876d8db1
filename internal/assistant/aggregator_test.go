package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
	"github.com/ashureev/mutuelle-assistant/internal/source"
)

func TestAggregatorToleratesFailingSources(t *testing.T) {
	t.Parallel()

	full := fullContext(awa())
	boom := errors.New("service indisponible")
	agg := NewAggregator(Sources{
		User: source.New[domain.User]("user", func(context.Context) (*domain.User, error) { return full.UserInfo, nil }),
		Member: source.New[domain.MemberRecord]("member", func(context.Context) (*domain.MemberRecord, error) {
			return nil, boom
		}),
		Dashboard: source.New[domain.Dashboard]("dashboard", func(context.Context) (*domain.Dashboard, error) {
			return full.DashboardData, nil
		}),
		Session: source.New[domain.MutualSession]("session", func(context.Context) (*domain.MutualSession, error) { return nil, nil }),
		Config: source.New[domain.MutualConfig]("config", func(context.Context) (*domain.MutualConfig, error) {
			return nil, boom
		}),
	}, nil)

	cc := agg.Refresh(context.Background())
	require.True(t, cc.HasIdentity())
	assert.Equal(t, "Awa", cc.UserInfo.FirstName)
	assert.Nil(t, cc.MemberData)
	assert.NotNil(t, cc.DashboardData)
	assert.Nil(t, cc.SessionData)
	assert.Nil(t, cc.ExerciseData)
	assert.Nil(t, cc.ConfigData)

	assert.Equal(t, cc, agg.Snapshot())
}

func TestAggregatorSnapshotWithoutRefreshIsEmpty(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(pushSources(nil), nil)
	assert.Equal(t, ChatContext{}, agg.Snapshot())
}

func TestAggregatorSubscribeRecomputes(t *testing.T) {
	t.Parallel()

	src := pushSources(nil)
	agg := NewAggregator(src, nil)

	var mu sync.Mutex
	var seen []ChatContext
	unsubscribe := agg.Subscribe(func(cc ChatContext) {
		mu.Lock()
		seen = append(seen, cc)
		mu.Unlock()
	})

	src.User.Set(awa())
	src.Config.Set(&domain.MutualConfig{ExerciseMonths: 12})

	mu.Lock()
	require.Len(t, seen, 2)
	assert.NotNil(t, seen[0].UserInfo)
	assert.Nil(t, seen[0].ConfigData)
	assert.NotNil(t, seen[1].ConfigData)
	mu.Unlock()

	unsubscribe()
	src.User.Set(moussa())

	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

// pushSources returns push-only handles, starting from the given user.
func pushSources(user *domain.User) Sources {
	src := Sources{
		User:      source.New[domain.User]("user", nil),
		Member:    source.New[domain.MemberRecord]("member", nil),
		Dashboard: source.New[domain.Dashboard]("dashboard", nil),
		Session:   source.New[domain.MutualSession]("session", nil),
		Exercise:  source.New[domain.Exercise]("exercise", nil),
		Config:    source.New[domain.MutualConfig]("config", nil),
	}
	if user != nil {
		src.User.Set(user)
	}
	return src
}
