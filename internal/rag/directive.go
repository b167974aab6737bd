package rag

import (
	"regexp"
	"strings"
)

// Directives are inline tokens the user can put in a message to steer
// retrieval: @memory forces an explicit memory search, @search forces a web
// search. Tokens are stripped before the message reaches the model.
type Directives struct {
	Memory bool
	Search bool
}

var directivePattern = regexp.MustCompile(`(^|\s)@(memory|search)\b`)

// ParseDirectives extracts directive tokens from a message and returns the
// cleaned message alongside the directives found.
func ParseDirectives(message string) (string, Directives) {
	var d Directives
	clean := directivePattern.ReplaceAllStringFunc(message, func(m string) string {
		switch {
		case strings.Contains(m, "@memory"):
			d.Memory = true
		case strings.Contains(m, "@search"):
			d.Search = true
		}
		return " "
	})
	clean = strings.Join(strings.Fields(clean), " ")
	return clean, d
}
