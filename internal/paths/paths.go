// Package paths extracts file-path mentions and fenced code blocks from free
// text. The scheduler uses it to find tasks that touch the same files, the
// conflict resolver to pair a path with the content an agent wrote for it, and
// the extractor to decide what to write to disk.
package paths

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
)

var (
	// dirPathPattern matches directory-prefixed paths ending in an extension,
	// e.g. src/api/users.ts or ./cmd/main.go.
	dirPathPattern = regexp.MustCompile(`(?:\.{1,2}/)?(?:[A-Za-z0-9_@-][A-Za-z0-9_@.-]*/)+[A-Za-z0-9_-][A-Za-z0-9_.-]*\.[A-Za-z0-9]+`)

	// rootFilePattern matches well-known project files that usually live at the
	// repository root without a directory prefix.
	rootFilePattern = regexp.MustCompile(`(?i)(?:package(?:-lock)?\.json|tsconfig(?:\.[a-z]+)?\.json|go\.mod|go\.sum|dockerfile|docker-compose\.ya?ml|makefile|\.env(?:\.[a-z]+)?|cargo\.toml|pyproject\.toml|requirements\.txt|[a-z]+\.config\.(?:js|ts|mjs|cjs))`)
)

// Mention is a path found in text and its byte span.
type Mention struct {
	Path  string // Normalized: lower-cased, without a leading "./"
	Raw   string // As written, with forward slashes and without a leading "./"
	Start int
	End   int
}

// Extract returns the distinct normalized paths mentioned in text, in order of
// first appearance.
func Extract(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range Mentions(text) {
		if !seen[m.Path] {
			seen[m.Path] = true
			out = append(out, m.Path)
		}
	}
	return out
}

// Mentions returns every path occurrence in text ordered by position.
// Matches embedded in a longer token (a URL, an absolute path, an identifier)
// are rejected.
func Mentions(text string) []Mention {
	var out []Mention
	taken := make(map[int]bool)

	for _, loc := range dirPathPattern.FindAllStringIndex(text, -1) {
		if !bounded(text, loc[0], loc[1]) {
			continue
		}
		out = append(out, newMention(text, loc))
		for i := loc[0]; i < loc[1]; i++ {
			taken[i] = true
		}
	}
	for _, loc := range rootFilePattern.FindAllStringIndex(text, -1) {
		if taken[loc[0]] || !bounded(text, loc[0], loc[1]) {
			continue
		}
		out = append(out, newMention(text, loc))
	}

	slices.SortFunc(out, func(a, b Mention) int { return cmp.Compare(a.Start, b.Start) })
	return out
}

func newMention(text string, loc []int) Mention {
	raw := strings.TrimPrefix(strings.ReplaceAll(text[loc[0]:loc[1]], `\`, "/"), "./")
	return Mention{Path: Normalize(raw), Raw: raw, Start: loc[0], End: loc[1]}
}

// Normalize lower-cases p, converts backslashes and strips a leading "./".
func Normalize(p string) string {
	p = strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimPrefix(p, "./")
}

// bounded reports whether text[start:end] is a whole token: the byte before it
// and the byte after it are not path characters. A trailing '.' is allowed so
// that paths ending a sentence still match.
func bounded(text string, start, end int) bool {
	if start > 0 && (isPathByte(text[start-1]) || text[start-1] == '.') {
		return false
	}
	return end >= len(text) || !isPathByte(text[end])
}

func isPathByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return c == '_' || c == '-' || c == '/' || c == '@' || c == '\\'
}
