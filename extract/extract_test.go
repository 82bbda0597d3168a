package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

var ctxbg = context.Background()

func tcompare(t *testing.T, got, exp any) {
	t.Helper()
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("got %v, expected %v", got, exp)
	}
}

// crlf turns readable test literals into wire-format messages.
func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

var pdfPayload = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\nstartxref\n9\n%%EOF\n")

func pdfMessage() string {
	return crlf(fmt.Sprintf(`From: <mjl@mox.example>
To: <mex@mox.example>
Subject: report
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="frontier"

preamble, to be ignored
--frontier
Content-Type: text/plain

See attached.
--frontier
Content-Type: application/pdf
Content-Disposition: attachment; filename="a.pdf"
Content-Transfer-Encoding: base64

%s
--frontier--
`, base64.StdEncoding.EncodeToString(pdfPayload)))
}

func TestNonMultipart(t *testing.T) {
	msg := crlf(`From: <mjl@mox.example>
Content-Type: text/plain

hi
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 0)
}

func TestSinglePDF(t *testing.T) {
	l := ExtractString(ctxbg, pdfMessage())
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "a.pdf")
	tcompare(t, l[0].MediaType, "application/pdf")
	if !bytes.Equal(l[0].Data, pdfPayload) {
		t.Fatalf("got data %q, expected %q", l[0].Data, pdfPayload)
	}
	tcompare(t, l[0].ContentID, "")
}

func TestIdempotent(t *testing.T) {
	msg := []byte(pdfMessage())
	a := Extract(ctxbg, msg)
	b := Extract(ctxbg, msg)
	tcompare(t, a, b)
}

func TestFoldedHeaderEquivalence(t *testing.T) {
	folded := crlf(`Content-Type: multipart/mixed;
	boundary="frontier"

--frontier
Content-Disposition: attachment; filename="x.bin"
Content-Transfer-Encoding: base64

aGVsbG8=
--frontier--
`)
	single := strings.Replace(folded, "Content-Type: multipart/mixed;\r\n\tboundary=\"frontier\"", "Content-Type: multipart/mixed; boundary=\"frontier\"", 1)
	a := ExtractString(ctxbg, folded)
	b := ExtractString(ctxbg, single)
	tcompare(t, a, b)
	tcompare(t, len(a), 1)
	tcompare(t, string(a[0].Data), "hello")
}

func TestNestedMultipart(t *testing.T) {
	msg := crlf(fmt.Sprintf(`Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain

plain text
--inner
Content-Type: application/zip
Content-Disposition: attachment; filename="files.zip"
Content-Transfer-Encoding: base64

%s
--inner--
--outer--
`, base64.StdEncoding.EncodeToString([]byte("PK\x03\x04zipdata"))))
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "files.zip")
	tcompare(t, l[0].MediaType, "application/zip")
	tcompare(t, string(l[0].Data), "PK\x03\x04zipdata")
}

func TestMissingFilename(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, FallbackFilename)
	tcompare(t, l[0].MediaType, "application/octet-stream")
}

func TestBadBase64SkipsPartOnly(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename="broken.bin"
Content-Transfer-Encoding: base64

abcde
--b
Content-Disposition: attachment; filename="good.bin"
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l, diag := ExtractDiag(ctxbg, []byte(msg))
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "good.bin")
	tcompare(t, diag.BadBase64, 1)
}

func TestDepthBound(t *testing.T) {
	// An attachment at depth 1 must still come out while a chain of nested
	// multiparts beyond the bound is abandoned without runaway recursion.
	// Boundary names like "x3x" are never substrings of each other, so the
	// nesting chain is the only way down.
	depth := MaxDepth + 5
	bound := func(i int) string { return fmt.Sprintf("x%dx", i) }
	var b strings.Builder
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", bound(0))
	fmt.Fprintf(&b, "--%s\r\nContent-Disposition: attachment; filename=\"shallow.bin\"\r\nContent-Transfer-Encoding: base64\r\n\r\naGVsbG8=\r\n", bound(0))
	for i := 1; i <= depth; i++ {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: multipart/mixed; boundary=%s\r\n\r\n", bound(i-1), bound(i))
	}
	fmt.Fprintf(&b, "--%s\r\nContent-Disposition: attachment; filename=\"deep.bin\"\r\nContent-Transfer-Encoding: base64\r\n\r\naGVsbG8=\r\n", bound(depth))
	for i := depth; i >= 0; i-- {
		fmt.Fprintf(&b, "--%s--\r\n", bound(i))
	}

	l, diag := ExtractDiag(ctxbg, []byte(b.String()))
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "shallow.bin")
	if diag.DepthExceeded == 0 {
		t.Fatalf("expected depth bound to be hit, diagnostics %+v", diag)
	}
}

func TestContentID(t *testing.T) {
	msg := crlf(`Content-Type: multipart/related; boundary=b

--b
Content-Type: application/octet-stream
Content-Id: <part1@mox.example>
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].ContentID, "<part1@mox.example>")
}

func TestContentIDFolded(t *testing.T) {
	// A folded Content-Id on CRLF input must not keep the \r of the folded
	// line inside the value.
	msg := "Content-Type: multipart/related; boundary=b\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: application/octet-stream\r\n" +
		"Content-Id:\r\n <part1@mox.example>\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8=\r\n" +
		"--b--\r\n"
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].ContentID, "<part1@mox.example>")
}

func TestContentTypeNameFallback(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Type: application/pdf; name="named.pdf"
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "named.pdf")
}

func TestRFC2231Filename(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename*=utf-8''na%C3%AFve%20file.bin
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "naïve file.bin")
}

func TestQEncodedFilename(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename="=?utf-8?Q?r=C3=A9sum=C3=A9.pdf?="
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "résumé.pdf")
}

func TestBEncodedFilenameNotDecoded(t *testing.T) {
	// B-encoded words are a documented gap: the marker passes through as-is.
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename="=?utf-8?B?Zm9vLnBkZg==?="
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "=?utf-8?B?Zm9vLnBkZg==?=")
}

func TestInlineImage(t *testing.T) {
	inline := crlf(`Content-Type: multipart/related; boundary=b

--b
Content-Type: image/png

iVBORw0KGgo=
--b--
`)
	tcompare(t, len(ExtractString(ctxbg, inline)), 0)

	attached := strings.Replace(inline, "Content-Type: image/png", "Content-Type: image/png\r\nContent-Disposition: attachment; filename=\"i.png\"\r\nContent-Transfer-Encoding: base64", 1)
	l := ExtractString(ctxbg, attached)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].MediaType, "image/png")
}

func TestLatin1Message(t *testing.T) {
	// 0xe9 is é in Latin-1 and invalid UTF-8, the fallback decode must kick in.
	msg := []byte(crlf(`Subject: caf` + "\xe9" + `
Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename="x.bin"
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`))
	l := Extract(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, string(l[0].Data), "hello")
}

func TestNoBoundary(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed

--b
Content-Disposition: attachment; filename="x.bin"
Content-Transfer-Encoding: base64

aGVsbG8=
--b--
`)
	l, diag := ExtractDiag(ctxbg, []byte(msg))
	tcompare(t, len(l), 0)
	tcompare(t, diag.NoBoundary, 1)
}

func TestNonBase64AttachmentSkipped(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=b

--b
Content-Disposition: attachment; filename="x.txt"
Content-Transfer-Encoding: quoted-printable

hello=20world
--b--
`)
	l, diag := ExtractDiag(ctxbg, []byte(msg))
	tcompare(t, len(l), 0)
	tcompare(t, diag.NotBase64, 1)
}

func TestUnquotedBoundaryAndFilename(t *testing.T) {
	msg := crlf(`Content-Type: multipart/mixed; boundary=simple-bound

--simple-bound
Content-Disposition: attachment; filename=plain.bin; size=5
Content-Transfer-Encoding: base64

aGVsbG8=
--simple-bound--
`)
	l := ExtractString(ctxbg, msg)
	tcompare(t, len(l), 1)
	tcompare(t, l[0].Filename, "plain.bin")
}
