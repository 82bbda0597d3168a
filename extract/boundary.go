package extract

import (
	"strings"
)

const boundaryParam = "boundary="

// boundary extracts the multipart boundary token from a Content-Type header
// value. The quoted form (boundary="...") is tried before the unquoted form
// (boundary=... up to the next ";", whitespace or end). The parameter name is
// matched case-insensitively, the boundary value itself is returned exactly
// as written, boundaries are case-sensitive on the wire.
func boundary(ct string) (string, bool) {
	lower := strings.ToLower(ct)

	// Quoted form first.
	for i := 0; ; {
		j := strings.Index(lower[i:], boundaryParam)
		if j < 0 {
			break
		}
		j += i + len(boundaryParam)
		if j < len(ct) && ct[j] == '"' {
			// An empty boundary would make the walker split on bare "--".
			if k := strings.IndexByte(ct[j+1:], '"'); k > 0 {
				return ct[j+1 : j+1+k], true
			}
		}
		i = j
	}

	// Unquoted form.
	j := strings.Index(lower, boundaryParam)
	if j < 0 {
		return "", false
	}
	v := ct[j+len(boundaryParam):]
	if end := strings.IndexAny(v, "; \t\r\n"); end >= 0 {
		v = v[:end]
	}
	if v == "" || v[0] == '"' {
		return "", false
	}
	return v, true
}
