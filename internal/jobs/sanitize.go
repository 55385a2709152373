package jobs

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSanitizedLength = 500

var (
	urlQueryPattern   = regexp.MustCompile(`(https?://[^\s?#"'<>]+)\?[^\s#"'<>]*`)
	bearerPattern     = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`)
	secretParamRegexp = regexp.MustCompile(`(?i)\b(access_token|token|api_key|apikey|key|password|secret|t)=([^&\s"']+)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeMessage strips credentials and URL query strings from an error
// message and collapses it to a single bounded line.
func SanitizeMessage(msg string) string {
	msg = urlQueryPattern.ReplaceAllString(msg, "$1?[redacted]")
	msg = bearerPattern.ReplaceAllString(msg, "${1}[redacted]")
	msg = secretParamRegexp.ReplaceAllString(msg, "$1=[redacted]")
	msg = strings.TrimSpace(whitespacePattern.ReplaceAllString(msg, " "))

	if utf8.RuneCountInString(msg) > maxSanitizedLength {
		runes := []rune(msg)
		msg = string(runes[:maxSanitizedLength]) + "..."
	}
	return msg
}
