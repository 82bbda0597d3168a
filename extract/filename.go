package extract

import (
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// resolveFilename finds the filename for an attachment part. The
// Content-Disposition "filename" parameter is tried first, then the
// Content-Type "name" parameter. For each, the RFC 2231 utf-8'' form wins
// over the quoted form, which wins over the unquoted form. The captured value
// is percent-decoded, then Q-encoded words are decoded. If nothing resolves,
// FallbackFilename is returned: an attachment is never dropped for lacking a
// name.
func resolveFilename(headers map[string]string) string {
	sources := []struct {
		header string
		param  string
	}{
		{headers["content-disposition"], "filename"},
		{headers["content-type"], "name"},
	}
	for _, src := range sources {
		if v, ok := paramValue(src.header, src.param); ok {
			if s := decodeEncodedWords(percentDecode(v)); s != "" {
				return s
			}
		}
	}
	return FallbackFilename
}

// paramValue extracts a parameter value from a header value, trying the RFC
// 2231 utf-8'' form, the quoted form and the unquoted form, in that order.
// The parameter name and the utf-8'' marker match case-insensitively.
func paramValue(hv, name string) (string, bool) {
	lower := strings.ToLower(hv)

	if i := paramIndex(lower, name+"*=utf-8''"); i >= 0 {
		v := hv[i:]
		if end := strings.IndexAny(v, "; \t\r\n"); end >= 0 {
			v = v[:end]
		}
		if v != "" {
			return v, true
		}
	}

	if i := paramIndex(lower, name+`="`); i >= 0 {
		v := hv[i:]
		if j := strings.IndexByte(v, '"'); j > 0 {
			return v[:j], true
		}
	}

	if i := paramIndex(lower, name+"="); i >= 0 {
		v := hv[i:]
		if end := strings.IndexAny(v, "; \t\r\n"); end >= 0 {
			v = v[:end]
		}
		if v != "" && v[0] != '"' {
			return v, true
		}
	}

	return "", false
}

// paramIndex returns the index just past pattern in lower, requiring the
// match to start at a parameter boundary so "name=" does not match inside
// "filename=". Returns -1 when not present.
func paramIndex(lower, pattern string) int {
	for i := 0; ; {
		j := strings.Index(lower[i:], pattern)
		if j < 0 {
			return -1
		}
		j += i
		if j == 0 || lower[j-1] == ' ' || lower[j-1] == '\t' || lower[j-1] == ';' {
			return j + len(pattern)
		}
		i = j + 1
	}
}

// percentDecode decodes %XX escapes byte-wise, as used in RFC 2231 extended
// parameter values. Malformed escapes are passed through untouched.
func percentDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if hi, ok := unhex(s[i+1]); ok {
				if lo, ok := unhex(s[i+2]); ok {
					b.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// decodeEncodedWords decodes RFC 2047 encoded-words (=?charset?Q?text?=) in
// s. Only the Q (quoted-printable) encoding is handled: underscores become
// spaces and =XX hex escapes are decoded byte-wise, then the bytes are
// transcoded from the declared charset. B-encoded words are left as-is, a
// known limitation: filenames using =?charset?B?...?= do not decode.
func decodeEncodedWords(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "=?")
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		rest := s[i+2:]

		j := strings.IndexByte(rest, '?')
		if j < 0 || j+2 >= len(rest) || rest[j+2] != '?' {
			b.WriteString("=?")
			s = rest
			continue
		}
		charset := rest[:j]
		enc := rest[j+1]
		text := rest[j+3:]
		k := strings.Index(text, "?=")
		if k < 0 {
			b.WriteString("=?")
			s = rest
			continue
		}
		word := text[:k]
		s = text[k+2:]

		if enc != 'q' && enc != 'Q' {
			b.WriteString("=?" + charset + "?" + string(rune(enc)) + "?" + word + "?=")
			continue
		}
		b.WriteString(decodeCharset(charset, qDecode(word)))
	}
	return b.String()
}

// qDecode decodes the Q encoding: underscores represent spaces, =XX is a hex
// escape. Broken escapes pass through.
func qDecode(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			out = append(out, ' ')
		case c == '=' && i+2 < len(s):
			if hi, ok := unhex(s[i+1]); ok {
				if lo, ok := unhex(s[i+2]); ok {
					out = append(out, hi<<4|lo)
					i += 2
					continue
				}
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

// decodeCharset transcodes raw to utf-8 for known mime/iana charsets. For
// empty, us-ascii, utf-8 and unknown charsets the bytes are returned as-is.
func decodeCharset(charset string, raw []byte) string {
	switch strings.ToLower(charset) {
	case "", "us-ascii", "utf-8":
		return string(raw)
	}
	enc, _ := ianaindex.MIME.Encoding(charset)
	if enc == nil {
		enc, _ = ianaindex.IANA.Encoding(charset)
	}
	if enc == nil {
		return string(raw)
	}
	buf, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(buf)
}
