package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrInvalidFormat is returned for uploads that are not a Netscape cookie jar.
var ErrInvalidFormat = errors.New("invalid cookie file")

// DefaultMaxBytes caps an uploaded cookie jar.
const DefaultMaxBytes = 1 << 20

const (
	cookieExt       = ".txt"
	netscapeHeader  = "# Netscape HTTP Cookie File"
	httpCookieHead  = "# HTTP Cookie File"
	cookieFieldsNum = 7
)

// Validate checks that data looks like a Netscape/Mozilla cookie jar named
// *.txt and no larger than maxBytes (DefaultMaxBytes when maxBytes <= 0).
func Validate(fileName string, data []byte, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if !strings.EqualFold(filepath.Ext(fileName), cookieExt) {
		return fmt.Errorf("%w: file name must end in %s", ErrInvalidFormat, cookieExt)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}
	if int64(len(data)) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidFormat, len(data), maxBytes)
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return fmt.Errorf("%w: not a text file", ErrInvalidFormat)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, netscapeHeader) || strings.HasPrefix(line, httpCookieHead) {
			return nil
		}
		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#HttpOnly_") {
			continue
		}
		if len(strings.Split(line, "\t")) == cookieFieldsNum {
			return nil
		}
	}
	return fmt.Errorf("%w: no cookie entries", ErrInvalidFormat)
}
