package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/domain"
	"github.com/ashureev/mutuelle-assistant/internal/store"
)

type echoProvider struct{}

func (echoProvider) Open(context.Context, agent.Seed) (agent.Session, error) { return echoSession{}, nil }

func (echoProvider) Generate(context.Context, string) (string, error) {
	return "Question une ?\nQuestion deux ?", nil
}

func (echoProvider) Close() {}

type echoSession struct{}

func (echoSession) Send(_ context.Context, text string) (string, error) { return "écho : " + text, nil }

func (echoSession) Close() error { return nil }

func newChatManager(t *testing.T) *assistant.Manager {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "mutuelle.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.UpsertUser(context.Background(), &domain.User{
		UserID: "u-fatou", FirstName: "Fatou", Role: domain.RoleVisitor,
	}))

	mgr := assistant.NewBuilder(assistant.BuilderConfig{Repo: repo, Provider: echoProvider{}})("u-fatou")
	t.Cleanup(mgr.Close)
	return mgr
}

func TestRunChat(t *testing.T) {
	mgr := newChatManager(t)

	in := strings.NewReader("Bonjour\n/suggest 2\n/suggest 9\n/unknown\n/reset\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), mgr, in, &out))

	got := out.String()
	assert.Contains(t, got, "Bonjour Fatou")
	assert.Contains(t, got, "écho : Bonjour")
	assert.Contains(t, got, "écho : Question deux ?")
	assert.Contains(t, got, "choose a suggestion between 1 and 2")
	assert.Contains(t, got, "unknown command /unknown")
	assert.NotContains(t, got, "ignored")

	snap := mgr.Snapshot()
	assert.Len(t, snap.Messages, 1, "reset leaves only the welcome message")
}

func TestRunChatUnknownUser(t *testing.T) {
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "mutuelle.db"))
	require.NoError(t, err)
	defer repo.Close()

	mgr := assistant.NewBuilder(assistant.BuilderConfig{Repo: repo, Provider: echoProvider{}})("ghost")
	defer mgr.Close()

	err = runChat(context.Background(), mgr, strings.NewReader(""), &bytes.Buffer{})
	require.ErrorIs(t, err, assistant.ErrNoIdentity)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"seed", "prompt", "chat", "token"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSeedAndPromptCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mutuelle.db")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"seed", "--db", dbPath, "--file", "../../internal/store/testdata/seed.yaml"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "3 users")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"prompt", "--db", dbPath, "--user", "u-awa"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "## SITUATION FINANCIÈRE DU MEMBRE")
	assert.Contains(t, out.String(), "Awa Diallo")
}
