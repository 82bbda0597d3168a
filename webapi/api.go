// Package webapi serves the extraction engine over HTTP: sherpa API calls at
// /api/, raw message extraction at /extract and prometheus metrics at
// /metrics.
package webapi

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mjl-/sherpa"
	"github.com/mjl-/sherpadoc"
	"github.com/mjl-/sherpaprom"

	"github.com/mjl-/mex/extract"
	"github.com/mjl-/mex/metrics"
	"github.com/mjl-/mex/mexvar"
	"github.com/mjl-/mex/mlog"
	"github.com/mjl-/mex/store"
)

var xlog = mlog.New("webapi")

//go:embed api.json
var apiJSON []byte

var apiDoc = mustParseAPI(apiJSON)

func mustParseAPI(buf []byte) (doc sherpadoc.Section) {
	err := json.Unmarshal(buf, &doc)
	if err != nil {
		xlog.Fatalx("parsing api docs", err)
	}
	return doc
}

func xcheckf(ctx context.Context, err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	errmsg := fmt.Sprintf("%s: %s", msg, err)
	xlog.WithContext(ctx).Errorx(msg, err)
	panic(&sherpa.Error{Code: "server:error", Message: errmsg})
}

func xuserf(format string, args ...any) {
	panic(&sherpa.Error{Code: "user:error", Message: fmt.Sprintf(format, args...)})
}

// Mex exports the extraction API functions under /api/.
type Mex struct {
	maxMessageSize int64
	db             *store.DB
}

// Attachment is a single file recovered from a message, as returned over the
// API.
type Attachment struct {
	Filename   string
	MediaType  string
	ContentID  string
	Size       int64
	DataBase64 string
}

// StoredAttachment is a reference to an attachment record in the database.
type StoredAttachment struct {
	ID          int64
	Hash        string
	Filename    string
	MediaType   string
	ContentID   string
	Size        int64
	Created     time.Time
	NewlyStored bool
}

// Version returns the version of this mex instance.
func (Mex) Version(ctx context.Context) string {
	return mexvar.Version
}

func (m Mex) message(msgBase64 string) []byte {
	msg, err := base64.StdEncoding.DecodeString(msgBase64)
	if err != nil {
		xuserf("decoding message base64: %s", err)
	}
	if int64(len(msg)) > m.maxMessageSize {
		xuserf("message larger than maximum size %d", m.maxMessageSize)
	}
	return msg
}

// Extract returns the attachments found in the raw RFC 5322 message encoded
// in messageBase64. Extraction is best-effort, an empty list means no
// attachments were found.
func (m Mex) Extract(ctx context.Context, messageBase64 string) []Attachment {
	msg := m.message(messageBase64)

	start := time.Now()
	attachments, diag := extract.ExtractDiag(ctx, msg)
	metrics.ExtractObserve(len(attachments), diag, start)

	l := make([]Attachment, len(attachments))
	for i, a := range attachments {
		l[i] = Attachment{
			Filename:   a.Filename,
			MediaType:  a.MediaType,
			ContentID:  a.ContentID,
			Size:       int64(len(a.Data)),
			DataBase64: base64.StdEncoding.EncodeToString(a.Data),
		}
	}
	return l
}

// ExtractAndStore extracts attachments like Extract and persists each in the
// attachment database, deduplicated by content hash.
func (m Mex) ExtractAndStore(ctx context.Context, messageBase64 string) []StoredAttachment {
	msg := m.message(messageBase64)

	start := time.Now()
	attachments, diag := extract.ExtractDiag(ctx, msg)
	metrics.ExtractObserve(len(attachments), diag, start)

	l := make([]StoredAttachment, 0, len(attachments))
	for _, a := range attachments {
		record, created, err := m.db.Add(ctx, a)
		xcheckf(ctx, err, "storing attachment")
		l = append(l, storedAttachment(record, created))
	}
	return l
}

// AttachmentList returns all stored attachments, newest first, without their
// data.
func (m Mex) AttachmentList(ctx context.Context) []StoredAttachment {
	records, err := m.db.List(ctx)
	xcheckf(ctx, err, "listing attachments")
	l := make([]StoredAttachment, len(records))
	for i, r := range records {
		l[i] = storedAttachment(r, false)
	}
	return l
}

// AttachmentData returns the base64-encoded content of a stored attachment.
func (m Mex) AttachmentData(ctx context.Context, id int64) string {
	record, err := m.db.Get(ctx, id)
	xcheckf(ctx, err, "fetching attachment")
	return base64.StdEncoding.EncodeToString(record.Data)
}

func storedAttachment(r store.Attachment, created bool) StoredAttachment {
	return StoredAttachment{
		ID:          r.ID,
		Hash:        r.Hash,
		Filename:    r.Filename,
		MediaType:   r.MediaType,
		ContentID:   r.ContentID,
		Size:        r.Size,
		Created:     r.Created,
		NewlyStored: created,
	}
}

// NewSherpaHandler returns the handler serving the sherpa API at /api/.
func NewSherpaHandler(maxMessageSize int64, db *store.DB) (http.Handler, error) {
	collector, err := sherpaprom.NewCollector("mex", nil)
	if err != nil {
		return nil, fmt.Errorf("creating sherpa prometheus collector: %w", err)
	}
	return sherpa.NewHandler("/api/", mexvar.Version, Mex{maxMessageSize, db}, &apiDoc, &sherpa.HandlerOpts{Collector: collector, AdjustFunctionNames: "none"})
}
