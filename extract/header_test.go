package extract

import (
	"testing"
)

func TestParseHeaderBasic(t *testing.T) {
	text := crlf(`From: <mjl@mox.example>
CONTENT-TYPE: text/plain
X-Test:   spaced out

body starts here
`)
	headers, off := parseHeader(text)
	tcompare(t, headers["from"], "<mjl@mox.example>")
	tcompare(t, headers["content-type"], "text/plain")
	tcompare(t, headers["x-test"], "spaced out")
	tcompare(t, text[off:], crlf("body starts here\n"))
}

func TestParseHeaderFold(t *testing.T) {
	folded := "Subject: a folded\r\n value\r\n\r\n"
	plain := "Subject: a folded value\r\n\r\n"
	hf, _ := parseHeader(folded)
	hp, _ := parseHeader(plain)
	tcompare(t, hf["subject"], hp["subject"])
	tcompare(t, hf["subject"], "a folded value")
}

func TestParseHeaderFoldCollapsesWhitespace(t *testing.T) {
	// Internal whitespace runs on the continuation line are not preserved.
	h, _ := parseHeader("Subject: x\r\n \t  continued\r\n\r\n")
	tcompare(t, h["subject"], "x continued")
}

func TestParseHeaderRepeated(t *testing.T) {
	h, _ := parseHeader("X-A: one\r\nX-A: two\r\n\r\n")
	tcompare(t, h["x-a"], "two")
}

func TestParseHeaderNoBody(t *testing.T) {
	text := "X-A: one\r\nX-B: two"
	h, off := parseHeader(text)
	tcompare(t, h["x-a"], "one")
	tcompare(t, h["x-b"], "two")
	tcompare(t, off, len(text))
}

func TestParseHeaderEmpty(t *testing.T) {
	h, off := parseHeader("\r\nbody")
	tcompare(t, len(h), 0)
	tcompare(t, off, 2)
}

func TestDecodeText(t *testing.T) {
	s, ok := decodeText([]byte("plain ascii"))
	tcompare(t, ok, true)
	tcompare(t, s, "plain ascii")

	// Invalid UTF-8 falls back to Latin-1.
	s, ok = decodeText([]byte{'c', 'a', 'f', 0xe9})
	tcompare(t, ok, true)
	tcompare(t, s, "café")
}
