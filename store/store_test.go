package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mjl-/mex/extract"
)

var ctxbg = context.Background()

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func TestOpenBadDir(t *testing.T) {
	// Data directory path occupied by a regular file, creating it must fail.
	p := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(p, []byte("x"), 0660); err != nil {
		t.Fatalf("writing file: %s", err)
	}
	if _, err := Open(ctxbg, p); err == nil {
		t.Fatalf("open with file as data directory, got nil error")
	}
}

func TestStore(t *testing.T) {
	db, err := Open(ctxbg, t.TempDir())
	tcheck(t, err, "open db")
	defer db.Close()

	a := extract.Attachment{
		Filename:  "report.pdf",
		MediaType: "application/pdf",
		ContentID: "<report@example.org>",
		Data:      []byte("%PDF-1.4 not really a pdf"),
	}

	r1, created, err := db.Add(ctxbg, a)
	tcheck(t, err, "add attachment")
	if !created {
		t.Fatalf("first add, got created false")
	}
	if r1.ID == 0 || r1.Hash == "" || r1.Size != int64(len(a.Data)) {
		t.Fatalf("bad stored record %#v", r1)
	}

	// Same content is deduplicated.
	r2, created, err := db.Add(ctxbg, a)
	tcheck(t, err, "add duplicate attachment")
	if created {
		t.Fatalf("duplicate add, got created true")
	}
	if r2.ID != r1.ID {
		t.Fatalf("duplicate add, got id %d, expected %d", r2.ID, r1.ID)
	}

	b := a
	b.Filename = "other.bin"
	b.Data = []byte("different content")
	r3, created, err := db.Add(ctxbg, b)
	tcheck(t, err, "add second attachment")
	if !created || r3.ID == r1.ID {
		t.Fatalf("second attachment, got created %v id %d", created, r3.ID)
	}

	l, err := db.List(ctxbg)
	tcheck(t, err, "list attachments")
	if len(l) != 2 {
		t.Fatalf("list, got %d records, expected 2", len(l))
	}
	if l[0].ID != r3.ID {
		t.Fatalf("list, got first id %d, expected newest %d", l[0].ID, r3.ID)
	}
	if l[0].Data != nil {
		t.Fatalf("list, got data, expected none")
	}

	g, err := db.Get(ctxbg, r1.ID)
	tcheck(t, err, "get attachment")
	if !reflect.DeepEqual(g.Data, a.Data) {
		t.Fatalf("get, got data %q, expected %q", g.Data, a.Data)
	}

	err = db.Remove(ctxbg, r1.ID)
	tcheck(t, err, "remove attachment")
	if _, err := db.Get(ctxbg, r1.ID); err == nil {
		t.Fatalf("get after remove, got nil error")
	}
}
