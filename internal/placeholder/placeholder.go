// Package placeholder scans and fills {{name}} tokens in template text.
package placeholder

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{name}} placeholders. The inner match is non-greedy
// up to the next closing braces; a token missing its }} is simply not matched.
var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Extract returns the placeholder names found in text, trimmed of
// surrounding whitespace, deduplicated by first occurrence and ordered by
// first appearance. Never returns nil.
func Extract(text string) []string {
	names := []string{}
	seen := make(map[string]struct{})

	for _, match := range tokenPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(match[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

// Substitute replaces every {{name}} token whose trimmed name has an entry
// in values with that value. Replacement is a single pass and literal:
// tokens without a matching key stay in the output unchanged, and values
// containing {{other}} are not re-expanded.
func Substitute(text string, values map[string]string) string {
	if text == "" {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := values[name]; ok {
			return value
		}
		// Keep original if variable not found
		return match
	})
}
