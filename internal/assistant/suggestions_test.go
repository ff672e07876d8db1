package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestFallbackSuggestionsPerRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cc   ChatContext
		want []string
	}{
		{name: "admin", cc: ChatContext{UserInfo: moussa()}, want: adminSuggestions},
		{name: "member", cc: ChatContext{UserInfo: awa()}, want: memberSuggestions},
		{name: "visitor", cc: ChatContext{UserInfo: visitor()}, want: visitorSuggestions},
		{name: "no identity", cc: ChatContext{}, want: visitorSuggestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FallbackSuggestions(tt.cc)
			assert.Len(t, got, MaxSuggestions)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FallbackSuggestions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFallbackSuggestionsAreCopies(t *testing.T) {
	t.Parallel()

	got := FallbackSuggestions(ChatContext{UserInfo: awa()})
	got[0] = "modifié"
	assert.Equal(t, "Quelle est ma situation financière actuelle ?", memberSuggestions[0])
}

func TestEngineGenerate(t *testing.T) {
	t.Parallel()

	member := ChatContext{UserInfo: awa()}
	tests := []struct {
		name string
		gen  stubGenerator
		want []string
	}{
		{
			name: "primary parsed",
			gen:  stubGenerator{out: "1. Quel est mon solde ?\n2. Quand est la prochaine session ?"},
			want: []string{"Quel est mon solde ?", "Quand est la prochaine session ?"},
		},
		{name: "error falls back", gen: stubGenerator{err: errors.New("quota")}, want: memberSuggestions},
		{name: "empty falls back", gen: stubGenerator{out: "  \n\n"}, want: memberSuggestions},
		{
			name: "capped at four",
			gen:  stubGenerator{out: "- a\n- b\n- c\n- d\n- e"},
			want: []string{"a", "b", "c", "d"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewEngine(tt.gen, testCompiler(), 0, nil)
			got := e.Generate(context.Background(), member)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEngineWithoutGenerator(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, nil, 0, nil)
	assert.Equal(t, adminSuggestions, e.Generate(context.Background(), ChatContext{UserInfo: moussa()}))
}

func TestParseSuggestions(t *testing.T) {
	t.Parallel()

	raw := "## Suggestions\n* « Combien ai-je épargné ? »\n- Combien ai-je épargné ?\n3) `Puis-je emprunter ?`\n\n\"Qui contacter ?\""
	want := []string{"Combien ai-je épargné ?", "Puis-je emprunter ?", "Qui contacter ?"}
	if diff := cmp.Diff(want, ParseSuggestions(raw)); diff != "" {
		t.Errorf("ParseSuggestions() mismatch (-want +got):\n%s", diff)
	}
}
