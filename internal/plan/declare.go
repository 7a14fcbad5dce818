package plan

import (
	"regexp"
	"strings"
)

// declarationPattern matches "@declare domain:key = value", optionally behind a
// line-comment marker so agents can embed declarations inside code blocks.
var declarationPattern = regexp.MustCompile(`(?m)^[ \t]*(?:(?://|#|--|;|\*)[ \t]*)?@declare[ \t]+([A-Za-z0-9_.-]+):([A-Za-z0-9_./-]+)[ \t]*=[ \t]*(.*?)[ \t]*$`)

// ParseDeclarations extracts explicit declarations from agent output. Domains
// are lower-cased. When the same domain:key appears more than once, the last
// value wins and keeps the position of the first occurrence.
func ParseDeclarations(text string) []Declaration {
	matches := declarationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	index := make(map[string]int, len(matches))
	var decls []Declaration
	for _, m := range matches {
		d := Declaration{
			Domain: strings.ToLower(m[1]),
			Key:    m[2],
			Value:  m[3],
		}
		if d.Value == "" {
			continue
		}
		if i, ok := index[d.QualifiedKey()]; ok {
			decls[i].Value = d.Value
			continue
		}
		index[d.QualifiedKey()] = len(decls)
		decls = append(decls, d)
	}
	return decls
}
