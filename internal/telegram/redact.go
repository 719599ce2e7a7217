package telegram

import (
	"errors"
	"regexp"
	"strings"
)

// Bot tokens look like 123456:ABC-def...
var tokenPattern = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{20,}`)

// redact hides bot tokens embedded in URLs before they are logged.
func redact(s string) string {
	return tokenPattern.ReplaceAllString(s, "<token>")
}

func redactErr(err error, link string) error {
	msg := err.Error()
	if !strings.Contains(msg, link) && !tokenPattern.MatchString(msg) {
		return err
	}
	return errors.New(redact(msg))
}
