// Package extract recovers attached files from raw RFC 5322 messages.
//
// Extraction is best-effort and part-local: the structural messiness
// real-world mail servers produce (folded header lines, nested and broken
// multipart boundaries, inconsistent encodings, malformed metadata) degrades
// to skipped parts or an empty result, never to an error. The engine is pure
// and stateless, it can be called concurrently on independent messages.
//
// Known limitations, deliberate: base64 "encoded-word" filenames
// (=?charset?B?...?=) are not decoded, only the Q form is; attachment bodies
// are only decoded from base64, quoted-printable and 7/8bit bodies are
// skipped; attachment body bytes are never charset-transcoded, only header
// metadata is.
package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/mjl-/mex/mlog"
)

var xlog = mlog.New("extract")

// MaxDepth bounds recursion into nested multipart parts. Mail content is
// attacker-controlled, without a bound a chain of nested multiparts could
// recurse arbitrarily deep. Branches nested deeper are skipped, extraction
// continues with what was found. Set at startup, not safe for concurrent
// modification.
var MaxDepth = 20

// FallbackFilename is used when a part qualifies as an attachment but
// declares no filename parameter in any recognized form.
const FallbackFilename = "attachment.bin"

// Attachment is a single file recovered from a message.
type Attachment struct {
	Filename  string // Never empty, FallbackFilename if the part declared none.
	MediaType string // Lower-cased type/subtype with parameters stripped, e.g. "application/pdf".
	Data      []byte // Decoded content.
	ContentID string // Content-Id header value, empty if absent.
}

// Diagnostics counts parts examined and skipped during a single extraction,
// for tests and metrics. Counts never influence the result list.
type Diagnostics struct {
	Parts         int // Candidate part segments seen, at all nesting levels.
	NoHeaders     int // Segments without a parsable header block.
	NotAttachment int // Leaf parts that did not qualify as attachment.
	NotBase64     int // Attachment parts without base64 content-transfer-encoding.
	BadBase64     int // Attachment parts whose body did not decode.
	NoBoundary    int // Multipart content-types without a resolvable boundary.
	DepthExceeded int // Branches skipped due to MaxDepth.
	PDFFindings   int // Advisory findings from the PDF structure check.
}

type extractor struct {
	log         *mlog.Log
	attachments []Attachment
	diag        Diagnostics
}

// Extract returns the attached files found in a raw RFC 5322 message. It
// never fails: messages that are not multipart, have no resolvable boundary,
// cannot be decoded as UTF-8 or Latin-1, or contain only undecodable parts
// all yield an empty list. Order is first-encountered in the document.
func Extract(ctx context.Context, msg []byte) []Attachment {
	l, _ := ExtractDiag(ctx, msg)
	return l
}

// ExtractString is Extract for a message already held as a string.
func ExtractString(ctx context.Context, msg string) []Attachment {
	return Extract(ctx, []byte(msg))
}

// ExtractDiag is Extract, also returning diagnostics about skipped parts.
func ExtractDiag(ctx context.Context, msg []byte) ([]Attachment, Diagnostics) {
	log := xlog.WithContext(ctx)
	x := &extractor{log: log}

	text, ok := decodeText(msg)
	if !ok {
		log.Debug("message bytes not decodable as utf-8 or latin-1, no attachments")
		return nil, x.diag
	}

	headers, bodyOffset := parseHeader(text)
	ct := headers["content-type"]
	if !strings.Contains(strings.ToLower(ct), "multipart") {
		return nil, x.diag
	}
	bound, ok := boundary(ct)
	if !ok {
		x.diag.NoBoundary++
		log.Debug("multipart message without resolvable boundary, no attachments", mlog.Field("contenttype", ct))
		return nil, x.diag
	}

	x.walk(text[bodyOffset:], bound, 0)
	return x.attachments, x.diag
}

// decodeText decodes buf as UTF-8, falling back to Latin-1 (ISO-8859-1).
func decodeText(buf []byte) (string, bool) {
	if utf8.Valid(buf) {
		return string(buf), true
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(buf)
	if err != nil {
		return "", false
	}
	return string(s), true
}
