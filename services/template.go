package services

import (
	"regexp"
)

var placeholder = regexp.MustCompile(`\{([a-z_][a-z0-9_]*)\}`)

// Render replaces every {name} placeholder found in mapping. Placeholders missing from
// mapping are left untouched so one template can serve deployments where some values
// are meaningless.
func Render(template string, mapping map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		if value, ok := mapping[match[1:len(match)-1]]; ok {
			return value
		}
		return match
	})
}

func merge(mappings ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range mappings {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
