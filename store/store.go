// Package store persists extracted attachments in a bstore database,
// deduplicated by content hash.
//
// The extraction engine itself knows nothing about persistence, only the
// serve command and the HTTP API write here.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mjl-/bstore"

	"github.com/mjl-/mex/extract"
)

// Attachment is an extracted attachment as a database record.
type Attachment struct {
	ID        int64
	Hash      string `bstore:"unique,nonzero"` // Hex SHA-256 of Data, the deduplication key.
	Filename  string `bstore:"nonzero"`
	MediaType string
	ContentID string
	Size      int64
	Data      []byte
	Created   time.Time `bstore:"default now"`
}

// DB is an open attachment database.
type DB struct {
	db *bstore.DB
}

// Open opens or creates the attachment database in dataDir.
func Open(ctx context.Context, dataDir string) (*DB, error) {
	p := filepath.Join(dataDir, "attachments.db")
	if err := os.MkdirAll(filepath.Dir(p), 0770); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := bstore.Open(ctx, p, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, Attachment{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Add stores a, returning the record and whether it was newly inserted.
// Attachments with identical content share a record, the first-seen metadata
// wins.
func (d *DB) Add(ctx context.Context, a extract.Attachment) (Attachment, bool, error) {
	sum := sha256.Sum256(a.Data)
	record := Attachment{
		Hash:      hex.EncodeToString(sum[:]),
		Filename:  a.Filename,
		MediaType: a.MediaType,
		ContentID: a.ContentID,
		Size:      int64(len(a.Data)),
		Data:      a.Data,
	}
	var created bool
	err := d.db.Write(ctx, func(tx *bstore.Tx) error {
		existing, err := bstore.QueryTx[Attachment](tx).FilterNonzero(Attachment{Hash: record.Hash}).Get()
		if err == nil {
			record = existing
			return nil
		}
		if err != bstore.ErrAbsent {
			return err
		}
		created = true
		return tx.Insert(&record)
	})
	if err != nil {
		return Attachment{}, false, fmt.Errorf("add attachment: %w", err)
	}
	return record, created, nil
}

// List returns all stored attachments without their data, newest first.
func (d *DB) List(ctx context.Context) ([]Attachment, error) {
	l, err := bstore.QueryDB[Attachment](ctx, d.db).SortDesc("ID").List()
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	for i := range l {
		l[i].Data = nil
	}
	return l, nil
}

// Get returns a stored attachment by id, including its data.
func (d *DB) Get(ctx context.Context, id int64) (Attachment, error) {
	a := Attachment{ID: id}
	err := d.db.Read(ctx, func(tx *bstore.Tx) error {
		return tx.Get(&a)
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	return a, nil
}

// Remove deletes a stored attachment by id.
func (d *DB) Remove(ctx context.Context, id int64) error {
	err := d.db.Write(ctx, func(tx *bstore.Tx) error {
		return tx.Delete(&Attachment{ID: id})
	})
	if err != nil {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}
