package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalizeName collapses whitespace and fixes the casing of names typed
// entirely in lower or upper case ("ana MARIA" is left alone).
func normalizeName(s string, tag language.Tag) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return s
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return cases.Title(tag).String(s)
	}
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
