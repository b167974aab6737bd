package search

import "regexp"

// Patterns that suggest the user wants current information from the web.
// Matching is heuristic; the @search directive always wins.
var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(latest|current|recent|today|yesterday|this (week|month|year))\b`),
	regexp.MustCompile(`(?i)\b(news|headlines)\b`),
	regexp.MustCompile(`(?i)\bwhat('s| is) happening\b`),
	regexp.MustCompile(`(?i)\b(price|stock|weather|score|forecast)\b`),
	regexp.MustCompile(`(?i)\bsearch (the web|online|for)\b`),
	regexp.MustCompile(`(?i)\bas of (now|today|\d{4})\b`),
	regexp.MustCompile(`(?i)\b(release date|released|announced)\b`),
}

// ShouldTrigger reports whether a message looks like it needs fresh web
// information.
func ShouldTrigger(message string) bool {
	for _, p := range triggerPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}
