package webapi

import (
	"encoding/json"
	"fmt"
	"io"
	golog "log"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mjl-/mex/config"
	"github.com/mjl-/mex/extract"
	"github.com/mjl-/mex/metrics"
	"github.com/mjl-/mex/mlog"
	"github.com/mjl-/mex/store"
)

// NewMux returns the http mux serving the sherpa API, the raw extraction
// endpoint and prometheus metrics.
func NewMux(static config.Static, db *store.DB) (*http.ServeMux, error) {
	apiHandler, err := NewSherpaHandler(static.MaxMessageSize, db)
	if err != nil {
		return nil, err
	}

	authWrap := func(h http.Handler) http.Handler { return h }
	if static.AdminPasswordFile != "" {
		buf, err := os.ReadFile(static.AdminPasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading admin password file: %w", err)
		}
		passwordHash := strings.TrimSpace(string(buf))
		authWrap = func(h http.Handler) http.Handler {
			return basicAuthHandler(passwordHash, h)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", authWrap(apiHandler))
	mux.Handle("/extract", authWrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleExtract(static, db, w, r)
	})))
	mux.Handle("/metrics", promhttp.Handler())
	return mux, nil
}

// Serve starts the HTTP listener and blocks.
func Serve(static config.Static, db *store.DB) error {
	mux, err := NewMux(static, db)
	if err != nil {
		return err
	}
	xlog.Print("listening", mlog.Field("addr", static.Listen))
	server := &http.Server{
		Addr:              static.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          golog.New(mlog.ErrWriter(xlog, mlog.LevelError, "http error"), "", 0),
	}
	return server.ListenAndServe()
}

func basicAuthHandler(passwordHash string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok && user == "admin" && bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) == nil {
			h.ServeHTTP(w, r)
			return
		}
		// Slow down brute force attempts.
		time.Sleep(time.Second)
		w.Header().Set("WWW-Authenticate", `Basic realm="mex"`)
		http.Error(w, "401 - unauthorized", http.StatusUnauthorized)
	})
}

// handleExtract accepts a raw message as POST body and responds with a JSON
// array of the attachments found.
func handleExtract(static config.Static, db *store.DB, w http.ResponseWriter, r *http.Request) {
	log := xlog.WithContext(r.Context())

	defer func() {
		x := recover()
		if x == nil {
			return
		}
		log.Error("handling extract", mlog.Field("panic", x))
		debug.PrintStack()
		metrics.PanicInc("webapi")
		http.Error(w, "500 - internal server error", http.StatusInternalServerError)
	}()

	if r.Method != "POST" {
		http.Error(w, "405 - method not allowed - use POST", http.StatusMethodNotAllowed)
		return
	}
	msg, err := io.ReadAll(io.LimitReader(r.Body, static.MaxMessageSize+1))
	if err != nil {
		http.Error(w, "400 - bad request - reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if int64(len(msg)) > static.MaxMessageSize {
		http.Error(w, "400 - bad request - message too large", http.StatusBadRequest)
		return
	}

	start := time.Now()
	attachments, diag := extract.ExtractDiag(r.Context(), msg)
	metrics.ExtractObserve(len(attachments), diag, start)

	type result struct {
		Filename   string
		MediaType  string
		ContentID  string
		Size       int64
		DataBase64 []byte // Marshaled by encoding/json as base64.
	}
	var results []result
	storing := r.URL.Query().Get("store") != ""
	for _, a := range attachments {
		if storing {
			if _, _, err := db.Add(r.Context(), a); err != nil {
				log.Errorx("storing attachment", err)
				http.Error(w, "500 - internal server error - storing attachment", http.StatusInternalServerError)
				return
			}
		}
		results = append(results, result{a.Filename, a.MediaType, a.ContentID, int64(len(a.Data)), a.Data})
	}
	if results == nil {
		results = []result{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		log.Errorx("writing response", err)
	}
}
