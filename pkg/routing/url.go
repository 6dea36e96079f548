package routing

import "strings"

// StripBasePath removes base from the front of path. A base of "/" leaves the
// path unchanged.
func StripBasePath(path, base string) string {
	if base == "/" || base == "" {
		return path
	}
	return strings.TrimPrefix(path, base)
}

// StripEscapedBasePath removes the decoded base from the front of an escaped
// path and returns the rest still escaped. It reports false when the
// escaped path does not decode to base followed by the rest.
func StripEscapedBasePath(escaped, base string) (string, bool) {
	if base == "/" || base == "" {
		return escaped, true
	}
	i := 0
	for j := 0; j < len(base); j++ {
		if i >= len(escaped) {
			return "", false
		}
		c, n := escaped[i], 1
		if c == '%' {
			if i+2 >= len(escaped) || !ishex(escaped[i+1]) || !ishex(escaped[i+2]) {
				return "", false
			}
			c, n = unhex(escaped[i+1])<<4|unhex(escaped[i+2]), 3
		}
		if c != base[j] {
			return "", false
		}
		i += n
	}
	rest := escaped[i:]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	return rest, true
}

func ishex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// BuildUpstreamURL joins an upstream base and a path suffix with exactly one
// slash between them. An empty suffix yields the base unchanged. A non-empty
// raw query is appended verbatim.
func BuildUpstreamURL(base, suffix, rawQuery string) string {
	base = strings.TrimRight(base, "/")

	var sb strings.Builder
	sb.WriteString(base)
	if suffix != "" {
		sb.WriteByte('/')
		sb.WriteString(strings.TrimLeft(suffix, "/"))
	}
	if rawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(rawQuery)
	}
	return sb.String()
}
