package tmpl

import "regexp"

// Ref is one state-key reference found inside a template expression.
type Ref struct {
	Kind string // "param", "env" or "output"
	Key  string
}

var refRe = regexp.MustCompile(`(param|env|output)\s+"([^"]+)"`)

// References extracts every param/env/output reference from text. The
// definition validator uses this to reject undeclared keys before any stage
// executes.
func References(text string) []Ref {
	matches := refRe.FindAllStringSubmatch(text, -1)
	result := []Ref{}
	for _, m := range matches {
		result = append(result, Ref{Kind: m[1], Key: m[2]})
	}
	return result
}
