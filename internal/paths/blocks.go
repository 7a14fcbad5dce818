package paths

import (
	"strings"
)

// DefaultProximity is how far after a path mention, in bytes, a fenced block
// may open and still be attributed to that path.
const DefaultProximity = 500

// Fence is a fenced code block.
type Fence struct {
	Start   int // Offset of the opening ``` line
	End     int // Offset just past the closing ``` line
	Lang    string
	Content string // Text between the fences, without the fence lines
	Closed  bool
}

// Fences returns every fenced block in text. An unterminated block runs to the
// end of the text and has Closed false.
func Fences(text string) []Fence {
	var fences []Fence
	var cur *Fence
	var body strings.Builder

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if cur == nil {
				cur = &Fence{Start: offset, Lang: strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))}
				body.Reset()
			} else if trimmed == "```" {
				cur.Content = strings.TrimSuffix(body.String(), "\n")
				cur.Closed = true
				cur.End = offset + len(line)
				fences = append(fences, *cur)
				cur = nil
			} else {
				body.WriteString(line)
			}
		} else if cur != nil {
			body.WriteString(line)
		}
		offset += len(line)
	}
	if cur != nil {
		cur.Content = strings.TrimSuffix(body.String(), "\n")
		cur.End = len(text)
		fences = append(fences, *cur)
	}
	return fences
}

// Block pairs a path mention with the content of the fenced block that
// follows it.
type Block struct {
	Path    string // Normalized, see Mention
	Raw     string
	Content string
	Lang    string
}

// Blocks pairs each path mention with the nearest closed fence that opens
// after the mention and within window bytes of it. Mentions inside a fence do
// not count. When a path is paired more than once, the first pairing wins.
func Blocks(text string, window int) []Block {
	fences := Fences(text)
	if len(fences) == 0 {
		return nil
	}

	var blocks []Block
	seen := make(map[string]bool)
	for _, m := range Mentions(text) {
		if seen[m.Path] || insideFence(fences, m.Start) {
			continue
		}
		for _, f := range fences {
			if f.Start < m.End {
				continue
			}
			if f.Start-m.End <= window && f.Closed {
				seen[m.Path] = true
				blocks = append(blocks, Block{Path: m.Path, Raw: m.Raw, Content: f.Content, Lang: f.Lang})
			}
			break
		}
	}
	return blocks
}

// insideFence reports whether offset falls within a fence's body.
func insideFence(fences []Fence, offset int) bool {
	for _, f := range fences {
		if offset >= f.Start && offset < f.End {
			return true
		}
	}
	return false
}
