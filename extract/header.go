package extract

import (
	"strings"
)

// parseHeader splits text into a case-insensitive header map and the offset
// where the body begins, honoring RFC 5322 line folding.
//
// Lines are split on \n, a trailing \r is dropped. A line containing a colon
// starts a new header: the
// key is the text before the first colon, trimmed and lower-cased, the value
// the text after it. The colon test runs before the leading-whitespace test.
// A line starting with a space or tab continues the previous header's value:
// a single space plus the trimmed continuation text is appended, original
// internal whitespace runs are not preserved. The first line that is empty
// after trimming carriage returns, tabs and spaces ends the header block, the
// body starts right after it. Values are trimmed once at completion, not
// eagerly. Repeated header names overwrite, the last one wins.
//
// A message without a blank-line terminator yields a body offset of
// len(text), so no body is ever found in it downstream.
func parseHeader(text string) (map[string]string, int) {
	headers := map[string]string{}
	var curKey string

	finish := func() {
		for k, v := range headers {
			headers[k] = strings.TrimSpace(v)
		}
	}

	off := 0
	for off < len(text) {
		var line string
		next := len(text)
		if nl := strings.IndexByte(text[off:], '\n'); nl < 0 {
			line = text[off:]
		} else {
			line = text[off : off+nl]
			next = off + nl + 1
		}
		// On CRLF input the \r would otherwise end up interior to folded values.
		line = strings.TrimSuffix(line, "\r")

		if strings.Trim(line, " \t\r") == "" {
			finish()
			return headers, next
		}

		if i := strings.IndexByte(line, ':'); i >= 0 {
			curKey = strings.ToLower(strings.TrimSpace(line[:i]))
			headers[curKey] = line[i+1:]
		} else if (line[0] == ' ' || line[0] == '\t') && curKey != "" {
			headers[curKey] += " " + strings.Trim(line, " \t\r")
		}
		// Lines without colon or leading whitespace are not header material,
		// skip them.

		off = next
	}
	finish()
	return headers, len(text)
}
