package extract

import (
	"testing"
)

func TestBoundary(t *testing.T) {
	check := func(ct, exp string, expOK bool) {
		t.Helper()
		v, ok := boundary(ct)
		tcompare(t, ok, expOK)
		tcompare(t, v, exp)
	}

	check(`multipart/mixed; boundary="simple boundary"`, "simple boundary", true)
	check(`multipart/alternative; boundary=frontier`, "frontier", true)
	check(`multipart/mixed; boundary=frontier; charset=utf-8`, "frontier", true)
	check(`multipart/mixed; BOUNDARY="UpperCased"`, "UpperCased", true)
	check(`multipart/mixed; boundary="----=_NextPart_000_0000"`, "----=_NextPart_000_0000", true)
	check(`multipart/mixed`, "", false)
	check(`multipart/mixed; boundary=`, "", false)
	// An empty quoted boundary is as unusable as a missing one.
	check(`multipart/mixed; boundary=""`, "", false)
	// Unterminated quote matches neither form.
	check(`multipart/mixed; boundary="broken`, "", false)
	// The boundary value is case-sensitive, it must come back exactly as written.
	check(`multipart/mixed; boundary=MiXeD123`, "MiXeD123", true)
}
