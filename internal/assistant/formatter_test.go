package assistant

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text untouched", in: "Salut", want: "Salut"},
		{name: "header gets blank lines", in: "Intro\n## Titre\nTexte", want: "Intro\n\n## Titre\n\nTexte"},
		{name: "blank before list", in: "Voici :\n- a\n- b\nFin", want: "Voici :\n\n- a\n- b\nFin"},
		{name: "numbered list", in: "Étapes :\n1. payer\n2) attendre", want: "Étapes :\n\n1. payer\n2) attendre"},
		{name: "list continuation kept", in: "- a\n  suite\n- b", want: "- a\n  suite\n- b"},
		{name: "blank runs collapse", in: "a\n\n\n\nb", want: "a\n\nb"},
		{name: "whitespace lines are blank", in: "a\n \t\n\n  \nb", want: "a\n\nb"},
		{name: "outer blank lines trimmed", in: "\n\n  \nBonjour\n\n", want: "Bonjour"},
		{name: "crlf normalized", in: "a\r\n# T\r\nb", want: "a\n\n# T\n\nb"},
		{
			name: "fence surrounded and kept verbatim",
			in:   "Code :\n```go\nx := 1\n\n\n\n# pas un titre\n```\nSuite",
			want: "Code :\n\n```go\nx := 1\n\n\n\n# pas un titre\n```\n\nSuite",
		},
		{name: "unclosed fence", in: "a\n```\n- x\n\n\n", want: "a\n\n```\n- x"},
		{name: "hashtag is not a header", in: "a\n#mutuelle\nb", want: "a\n#mutuelle\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Format(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Format(got), "not idempotent")
		})
	}
}

// markdownText builds inputs out of structural fragments so the property
// check actually meets headers, lists and fences.
type markdownText string

var markdownFragments = []string{
	"", " ", "\t", "texte", "  indenté", "# Titre", "### Sous-titre", "#tag",
	"- puce", "* puce", "+ puce", "1. un", "2) deux", "  - imbriquée",
	"```", "```go", "~~~", "---", "\r", "a\r", "Épargne : 10 000 FCFA",
}

func (markdownText) Generate(r *rand.Rand, size int) reflect.Value {
	n := r.Intn(size + 1)
	lines := make([]string, n)
	for i := range lines {
		lines[i] = markdownFragments[r.Intn(len(markdownFragments))]
	}
	return reflect.ValueOf(markdownText(strings.Join(lines, "\n")))
}

func TestFormatIdempotent(t *testing.T) {
	t.Parallel()

	structural := func(s markdownText) bool {
		once := Format(string(s))
		return Format(once) == once
	}
	if err := quick.Check(structural, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}

	arbitrary := func(s string) bool {
		once := Format(s)
		return Format(once) == once
	}
	if err := quick.Check(arbitrary, &quick.Config{MaxCount: 2000}); err != nil {
		t.Error(err)
	}
}
