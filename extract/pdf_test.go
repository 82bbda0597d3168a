package extract

import (
	"bytes"
	"strings"
	"testing"
)

func TestCheckPDF(t *testing.T) {
	ok := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\nstartxref\n9\n%%EOF\n")
	tcompare(t, len(CheckPDF(ok)), 0)

	noSig := []byte("not a pdf\nstartxref\n3\n%%EOF\n")
	findings := CheckPDF(noSig)
	tcompare(t, len(findings), 1)
	tcompare(t, findings[0], "missing %PDF- signature")

	noEOF := []byte("%PDF-1.4\ncontent without trailer")
	findings = CheckPDF(noEOF)
	tcompare(t, len(findings), 1)

	// %%EOF beyond the final 1kb is not good enough.
	farEOF := []byte("%PDF-1.4\n%%EOF\n" + strings.Repeat("x", 2048))
	findings = CheckPDF(farEOF)
	tcompare(t, len(findings), 1)

	badOffset := []byte("%PDF-1.4\nstartxref\n99999\n%%EOF\n")
	findings = CheckPDF(badOffset)
	tcompare(t, len(findings), 1)
	if !strings.Contains(findings[0], "startxref offset") {
		t.Fatalf("got findings %v, expected startxref offset finding", findings)
	}

	noNumber := []byte("%PDF-1.4\nstartxref\nnothing\n%%EOF\n")
	findings = CheckPDF(noNumber)
	tcompare(t, findings, []string{"startxref marker without numeric offset"})

	// Large valid file, %%EOF within the final 1kb.
	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), 4096)...)
	big = append(big, []byte("\nstartxref\n9\n%%EOF\n")...)
	tcompare(t, len(CheckPDF(big)), 0)
}
