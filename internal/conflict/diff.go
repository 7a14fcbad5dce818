package conflict

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffKind classifies a DiffLine.
type DiffKind string

const (
	DiffContext DiffKind = "context"
	DiffAdded   DiffKind = "added"
	DiffRemoved DiffKind = "removed"
)

// DiffLine is one line of a diff view.
type DiffLine struct {
	Kind DiffKind `json:"kind"`
	Text string   `json:"text"`
}

// BuildDiffView compares a and b line by line as sets: lines of a missing
// from b are removed, lines of b missing from a are added, shared lines are
// context. Line order and repetition are not considered; UnifiedDiff gives an
// edit script.
func BuildDiffView(a, b string) []DiffLine {
	linesA, linesB := strings.Split(a, "\n"), strings.Split(b, "\n")
	inA := make(map[string]bool, len(linesA))
	for _, l := range linesA {
		inA[l] = true
	}
	inB := make(map[string]bool, len(linesB))
	for _, l := range linesB {
		inB[l] = true
	}

	view := make([]DiffLine, 0, len(linesA)+len(linesB))
	for _, l := range linesA {
		kind := DiffRemoved
		if inB[l] {
			kind = DiffContext
		}
		view = append(view, DiffLine{Kind: kind, Text: l})
	}
	for _, l := range linesB {
		if !inA[l] {
			view = append(view, DiffLine{Kind: DiffAdded, Text: l})
		}
	}
	return view
}

// UnifiedDiff returns a unified diff from a to b with three lines of context.
// It is empty when the two are equal.
func UnifiedDiff(a, b, labelA, labelB string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: labelA,
		ToFile:   labelB,
		Context:  3,
	})
}

// Diff returns the unified diff between the two sides of c, or "" for
// conflicts that carry no comparable text.
func Diff(c Conflict) (string, error) {
	b := c.Common()
	switch c := c.(type) {
	case FileMerge:
		return UnifiedDiff(c.Contents[0], c.Contents[1], b.TaskIDs[0]+"/"+c.Path, b.TaskIDs[1]+"/"+c.Path)
	case APIContract:
		return UnifiedDiff(c.Snippets[0], c.Snippets[1], b.TaskIDs[0], b.TaskIDs[1])
	case DuplicateWork, Contradiction:
	}
	return "", nil
}
