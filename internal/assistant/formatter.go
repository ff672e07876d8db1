package assistant

import (
	"regexp"
	"strings"
)

var (
	headerLine = regexp.MustCompile(`^\s{0,3}#{1,6}(\s|$)`)
	bulletLine = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
)

// Format normalizes blank lines around Markdown structure in model output:
// headers and fenced code blocks get a blank line on both sides, a list gets
// one before it, and runs of blank lines collapse to one. Fenced content is
// kept verbatim. Format(Format(s)) == Format(s).
func Format(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var (
		out       []string
		inFence   bool
		inList    bool
		needBlank bool
	)
	blank := func() {
		inList = false
		if len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if inFence {
			out = append(out, line)
			if isFence(line) {
				inFence = false
				needBlank = true
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			blank()
			needBlank = false
			continue
		}
		if needBlank {
			blank()
			needBlank = false
		}

		switch {
		case isFence(line):
			blank()
			out = append(out, line)
			inFence = true
		case headerLine.MatchString(line):
			blank()
			out = append(out, line)
			needBlank = true
		case bulletLine.MatchString(line):
			if !inList {
				blank()
			}
			out = append(out, line)
			inList = true
		case inList && (line[0] == ' ' || line[0] == '\t'):
			// Indented continuation of a list item.
			out = append(out, line)
		default:
			out = append(out, line)
			inList = false
		}
	}

	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func isFence(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~")
}
