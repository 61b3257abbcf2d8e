package template

import "regexp"

// placeholderPattern matches {{name}}, allowing spaces inside the braces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render fills {{name}} placeholders in prompt or title text from vars.
// A placeholder with no value, or an empty one, stays in the text as
// written and is reported in unresolved so the caller can log it; a prompt
// is still worth sending with one blank left in.
func Render(text string, vars map[string]string) (out string, unresolved []string) {
	seen := make(map[string]bool)
	out = placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v := vars[name]; v != "" {
			return v
		}
		if !seen[name] {
			seen[name] = true
			unresolved = append(unresolved, name)
		}
		return match
	})
	return out, unresolved
}

// Placeholders lists the distinct placeholder names in text in order of
// first appearance.
func Placeholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
