package extract

import (
	"encoding/base64"
	"strings"

	"github.com/mjl-/mex/mlog"
)

// classifyPart re-parses a candidate segment into its own headers and body,
// recurses for nested multiparts and emits an Attachment for qualifying leaf
// parts. Any failure is local to this part, siblings are unaffected.
func (x *extractor) classifyPart(seg string, depth int) {
	x.diag.Parts++

	// Strip the single line break adjacent to the delimiter, not all leading
	// whitespace: a body may legitimately start with blank lines.
	if strings.HasPrefix(seg, "\r\n") {
		seg = seg[2:]
	} else if len(seg) > 0 && (seg[0] == '\n' || seg[0] == '\r') {
		seg = seg[1:]
	}

	headers, bodyOffset := parseHeader(seg)
	if len(headers) == 0 {
		x.diag.NoHeaders++
		return
	}
	body := seg[bodyOffset:]

	ct := headers["content-type"]
	lct := strings.ToLower(ct)
	if strings.Contains(lct, "multipart/") {
		bound, ok := boundary(ct)
		if !ok {
			x.diag.NoBoundary++
			x.log.Debug("nested multipart part without resolvable boundary, skipping", mlog.Field("contenttype", ct))
			return
		}
		x.walk(body, bound, depth+1)
		return
	}

	disp := strings.ToLower(headers["content-disposition"])
	attached := strings.Contains(disp, "attachment") ||
		strings.HasPrefix(lct, "application/") ||
		strings.HasPrefix(lct, "image/") && strings.Contains(disp, "attachment")
	if !attached {
		// Covers inline text/html alternatives, and inline images without an
		// explicit attachment disposition.
		x.diag.NotAttachment++
		return
	}

	filename := resolveFilename(headers)

	cte := strings.ToLower(headers["content-transfer-encoding"])
	if !strings.Contains(cte, "base64") {
		x.diag.NotBase64++
		x.log.Debug("attachment part without base64 transfer encoding, skipping", mlog.Field("filename", filename), mlog.Field("encoding", cte))
		return
	}
	data := decodeBase64Body(body)
	if len(data) == 0 {
		x.diag.BadBase64++
		x.log.Debug("attachment part body did not decode as base64, skipping", mlog.Field("filename", filename))
		return
	}

	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		findings := CheckPDF(data)
		x.diag.PDFFindings += len(findings)
		for _, f := range findings {
			x.log.Debug("pdf structure check", mlog.Field("filename", filename), mlog.Field("finding", f))
		}
	}

	x.attachments = append(x.attachments, Attachment{
		Filename:  filename,
		MediaType: mediaType(ct),
		Data:      data,
		ContentID: strings.TrimSpace(headers["content-id"]),
	})
}

// decodeBase64Body decodes a base64-encoded part body. Lines are trimmed,
// empty lines and boundary-lookalike lines (starting with "--") dropped, the
// remainder concatenated. Characters outside the base64 alphabet are dropped
// before decoding, mail software pads and mangles freely.
func decodeBase64Body(body string) []byte {
	var b strings.Builder
	b.Grow(len(body))
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			c := line[i]
			if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/' || c == '=' {
				b.WriteByte(c)
			}
		}
	}
	s := strings.TrimRight(b.String(), "=")
	buf, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return buf
}

// mediaType returns the primary type/subtype token of a Content-Type value,
// lower-cased, parameters stripped. application/octet-stream when absent or
// unparsable.
func mediaType(ct string) string {
	s := strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	t := strings.SplitN(s, "/", 2)
	if len(t) != 2 || t[0] == "" || t[1] == "" {
		return "application/octet-stream"
	}
	for _, c := range s {
		if c <= ' ' || c >= 0x80 {
			return "application/octet-stream"
		}
	}
	return s
}
