package patterns

import (
	"regexp"
	"strings"
)

// Placeholders substituted for variable substrings.
const (
	PlaceholderUUID      = "<UUID>"
	PlaceholderTimestamp = "<TS>"
	PlaceholderIP        = "<IP>"
	PlaceholderHex       = "<HEX>"
	PlaceholderID        = "<ID>"
	PlaceholderNumber    = "<N>"
)

var (
	uuidPattern      = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	ipPattern        = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d{1,5})?\b`)
	hexPattern       = regexp.MustCompile(`\b(?:0x)?[0-9a-fA-F]{8,}\b`)
	mixedPattern     = regexp.MustCompile(`\b(?:[A-Za-z]+[0-9]|[0-9]+[A-Za-z])[A-Za-z0-9]*\b`)
	digitPattern     = regexp.MustCompile(`[0-9]+`)
)

// Normalize rewrites the variable parts of a log message (uuids, timestamps,
// IP addresses, long hex runs, mixed letter/digit identifiers and any
// remaining digit runs) to fixed placeholders and truncates the result to
// maxLen runes. A non-positive maxLen disables truncation.
//
// Messages that differ only in those variable parts normalise to the same
// key, which is what the grouping and insight code counts on.
func Normalize(message string, maxLen int) string {
	out := strings.TrimSpace(message)
	out = uuidPattern.ReplaceAllString(out, PlaceholderUUID)
	out = timestampPattern.ReplaceAllString(out, PlaceholderTimestamp)
	out = ipPattern.ReplaceAllString(out, PlaceholderIP)
	out = hexPattern.ReplaceAllString(out, PlaceholderHex)
	out = mixedPattern.ReplaceAllString(out, PlaceholderID)
	out = digitPattern.ReplaceAllString(out, PlaceholderNumber)
	return Truncate(out, maxLen)
}

// Truncate cuts s to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// FirstWords returns the first n whitespace-separated words of s.
func FirstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
