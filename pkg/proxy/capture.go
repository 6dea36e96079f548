package proxy

import (
	"strings"
	"unicode/utf8"
)

// StreamPlaceholder is recorded as the body of a streaming response that
// carried no bytes.
const StreamPlaceholder = "[stream response]"

// capture keeps a bounded prefix of everything written to it.
type capture struct {
	limit int
	buf   []byte
	total int64
}

func newCapture(limit int) *capture {
	if limit < 0 {
		limit = 0
	}
	return &capture{limit: limit}
}

// Write records up to the remaining capacity and always reports success so
// it can sit behind an io.MultiWriter.
func (c *capture) Write(p []byte) (int, error) {
	c.total += int64(len(p))
	if room := c.limit - len(c.buf); room > 0 {
		if len(p) > room {
			c.buf = append(c.buf, p[:room]...)
		} else {
			c.buf = append(c.buf, p...)
		}
	}
	return len(p), nil
}

// String returns the captured prefix as valid UTF-8.
func (c *capture) String() string {
	return toText(c.buf)
}

// Total returns the number of bytes seen, including those not kept.
func (c *capture) Total() int64 {
	return c.total
}

// CaptureBody returns at most limit bytes of body as text. An empty body
// yields an empty string.
func CaptureBody(body []byte, limit int) string {
	if limit >= 0 && len(body) > limit {
		body = body[:limit]
	}
	return toText(body)
}

// snippet returns the first n characters of text.
func snippet(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

func toText(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
