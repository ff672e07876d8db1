package assistant

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/mutuelle-assistant/internal/agent"
)

// MaxSuggestions caps every suggestion list.
const MaxSuggestions = 4

var (
	adminSuggestions = []string{
		"Quel est l'état de la trésorerie de la mutuelle ?",
		"Quels membres ont un emprunt en cours ?",
		"Y a-t-il des renflouements en attente ?",
		"Où en est la session actuelle ?",
	}
	memberSuggestions = []string{
		"Quelle est ma situation financière actuelle ?",
		"Combien puis-je emprunter ?",
		"Où en est le remboursement de mon emprunt ?",
		"Comment fonctionne le fonds de solidarité ?",
	}
	visitorSuggestions = []string{
		"Comment devenir membre de la mutuelle ?",
		"Quels sont les frais d'inscription ?",
		"Comment fonctionnent les emprunts ?",
		"À quoi sert le fonds de solidarité ?",
	}
)

// FallbackSuggestions returns the static list for the context's role.
// It always holds exactly MaxSuggestions items.
func FallbackSuggestions(ctx ChatContext) []string {
	role := ctx.Role()
	var list []string
	switch {
	case role.IsAdmin():
		list = adminSuggestions
	case role.IsMember():
		list = memberSuggestions
	default:
		list = visitorSuggestions
	}
	return append([]string(nil), list...)
}

// Engine produces follow-up prompts, from the generative service when it
// answers usefully and from the static lists otherwise.
type Engine struct {
	gen      agent.Generator
	compiler *Compiler
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine creates a suggestion engine. A nil generator always falls back.
func NewEngine(gen agent.Generator, compiler *Compiler, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if compiler == nil {
		compiler = NewCompiler()
	}
	return &Engine{gen: gen, compiler: compiler, timeout: timeout, logger: logger}
}

// Generate never fails and never returns an empty list.
func (e *Engine) Generate(ctx context.Context, cc ChatContext) []string {
	if e.gen == nil {
		return FallbackSuggestions(cc)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.gen.Generate(ctx, e.prompt(cc))
	if err != nil {
		e.logger.Warn("Suggestion generation failed, using fallback", "error", err)
		return FallbackSuggestions(cc)
	}

	items := ParseSuggestions(raw)
	if len(items) == 0 {
		e.logger.Warn("Suggestion generation returned nothing usable, using fallback")
		return FallbackSuggestions(cc)
	}
	return items
}

func (e *Engine) prompt(cc ChatContext) string {
	var b strings.Builder
	b.WriteString(e.compiler.SafeCompile(cc))
	b.WriteString("\n## TÂCHE\n")
	b.WriteString("Propose exactement 4 questions courtes que l'utilisateur pourrait poser ensuite, ")
	b.WriteString("adaptées à sa situation. Écris une question par ligne, sans numérotation ni commentaire.\n")
	return b.String()
}

var listPrefix = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s*`)

// ParseSuggestions extracts up to MaxSuggestions lines from model output,
// dropping list markers, quotes and blank lines.
func ParseSuggestions(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(raw, "\n") {
		line = listPrefix.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), "\"«»*` ")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
