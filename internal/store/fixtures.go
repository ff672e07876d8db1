package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

// Fixtures is a YAML document of association data used to seed a database.
type Fixtures struct {
	Config    *domain.MutualConfig   `yaml:"config"`
	Users     []domain.User          `yaml:"users"`
	Members   []domain.MemberRecord  `yaml:"members"`
	Exercises []domain.Exercise      `yaml:"exercises"`
	Sessions  []domain.MutualSession `yaml:"sessions"`
}

// DecodeFixtures parses a fixtures document, rejecting unknown keys.
func DecodeFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixtures
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixtures) validate() error {
	users := make(map[string]bool, len(f.Users))
	for _, u := range f.Users {
		if u.UserID == "" {
			return errors.New("fixtures: user without user_id")
		}
		users[u.UserID] = true
	}
	for _, m := range f.Members {
		if m.MemberID == "" {
			return errors.New("fixtures: member without member_id")
		}
		if !users[m.UserID] {
			return fmt.Errorf("fixtures: member %s references unknown user %q", m.MemberID, m.UserID)
		}
	}
	for _, e := range f.Exercises {
		if e.ExerciseID == "" {
			return errors.New("fixtures: exercise without exercise_id")
		}
	}
	for _, s := range f.Sessions {
		if s.SessionID == "" {
			return errors.New("fixtures: session without session_id")
		}
	}
	return nil
}

// Apply upserts every record. It is idempotent.
func (f *Fixtures) Apply(ctx context.Context, repo Repository) error {
	if f.Config != nil {
		if err := repo.SaveMutualConfig(ctx, f.Config); err != nil {
			return err
		}
	}
	for i := range f.Users {
		if err := repo.UpsertUser(ctx, &f.Users[i]); err != nil {
			return err
		}
	}
	for i := range f.Members {
		if err := repo.UpsertMember(ctx, &f.Members[i]); err != nil {
			return err
		}
	}
	for i := range f.Exercises {
		if err := repo.UpsertExercise(ctx, &f.Exercises[i]); err != nil {
			return err
		}
	}
	for i := range f.Sessions {
		if err := repo.UpsertSession(ctx, &f.Sessions[i]); err != nil {
			return err
		}
	}
	return nil
}
