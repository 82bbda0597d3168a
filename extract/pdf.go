package extract

import (
	"bytes"
	"fmt"
	"strconv"
)

var (
	pdfSignature = []byte("%PDF-")
	pdfEOF       = []byte("%%EOF")
	pdfStartxref = []byte("startxref")
)

// CheckPDF runs advisory structure checks over a decoded PDF payload: the
// %PDF- signature at the start, a %%EOF marker within the final 1KB, and, if
// a startxref marker is present, that the offset following it does not point
// beyond the end of the data. The findings surface document corruption early
// for debugging, they never alter or block extraction output.
func CheckPDF(data []byte) []string {
	var findings []string

	if !bytes.HasPrefix(data, pdfSignature) {
		findings = append(findings, "missing %PDF- signature")
	}

	tail := data
	if len(tail) > 1024 {
		tail = tail[len(tail)-1024:]
	}
	if !bytes.Contains(tail, pdfEOF) {
		findings = append(findings, "missing %%EOF marker in final 1kb")
	}

	if i := bytes.LastIndex(data, pdfStartxref); i >= 0 {
		offset, ok := parseStartxref(data[i+len(pdfStartxref):])
		if !ok {
			findings = append(findings, "startxref marker without numeric offset")
		} else if offset > int64(len(data)) {
			findings = append(findings, fmt.Sprintf("startxref offset %d beyond total size %d", offset, len(data)))
		}
	}

	return findings
}

// parseStartxref reads the decimal offset following a startxref marker,
// skipping the line break after the keyword.
func parseStartxref(s []byte) (int64, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	v, err := strconv.ParseInt(string(s[i:j]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
