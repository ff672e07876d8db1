// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

// Repository is the backing store of the mutual-aid data providers.
// Lookups that find nothing return (nil, nil): an absent value is not an error.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetMemberByUser retrieves the financial record attached to a user.
	GetMemberByUser(ctx context.Context, userID string) (*domain.MemberRecord, error)

	// UpsertMember creates or updates a member financial record.
	UpsertMember(ctx context.Context, member *domain.MemberRecord) error

	// GetDashboard aggregates association-wide figures.
	GetDashboard(ctx context.Context) (*domain.Dashboard, error)

	// GetCurrentSession returns the in-progress session, or the latest planned one.
	GetCurrentSession(ctx context.Context) (*domain.MutualSession, error)

	// UpsertSession creates or updates a session.
	UpsertSession(ctx context.Context, session *domain.MutualSession) error

	// GetCurrentExercise returns the exercise that is not closed, latest first.
	GetCurrentExercise(ctx context.Context) (*domain.Exercise, error)

	// UpsertExercise creates or updates an exercise.
	UpsertExercise(ctx context.Context, exercise *domain.Exercise) error

	// GetMutualConfig returns the association parameters.
	GetMutualConfig(ctx context.Context) (*domain.MutualConfig, error)

	// SaveMutualConfig replaces the association parameters.
	SaveMutualConfig(ctx context.Context, cfg *domain.MutualConfig) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
