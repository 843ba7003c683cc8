package observability

import (
	"strings"
	"unicode"
)

// clean strips control characters and truncates to limit runes so request
// supplied values cannot forge log lines.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}

func cleanRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clean(route, 180)
}

func cleanMethod(method string) string { return clean(method, 10) }
