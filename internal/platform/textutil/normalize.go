package textutil

import (
	"strings"

	"golang.org/x/text/width"
)

var dashReplacer = strings.NewReplacer(
	"ー", "-",
	"―", "-",
	"‐", "-",
	"−", "-",
	"–", "-",
	"—", "-",
)

// Fold trims s and folds full-width ASCII and half-width katakana to their
// canonical widths.
func Fold(s string) string {
	return width.Fold.String(strings.TrimSpace(s))
}

// NormalizePhone folds full-width digits and dash variants in a phone number.
func NormalizePhone(s string) string {
	return dashReplacer.Replace(Fold(s))
}

// NormalizePostalCode returns the postal code as NNN-NNNN when it has exactly
// seven digits, otherwise the folded input.
func NormalizePostalCode(s string) string {
	folded := dashReplacer.Replace(Fold(s))
	folded = strings.TrimPrefix(folded, "〒")
	digits := strings.ReplaceAll(folded, "-", "")
	if len(digits) != 7 || strings.Trim(digits, "0123456789") != "" {
		return folded
	}
	return digits[:3] + "-" + digits[3:]
}

// Key returns a comparison key: folded and lower-cased.
func Key(s string) string {
	return strings.ToLower(Fold(s))
}

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
