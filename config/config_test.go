package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mjl-/mex/mlog"
)

func writeConf(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "mex.conf")
	if err := os.WriteFile(p, []byte(content), 0660); err != nil {
		t.Fatalf("writing config: %s", err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := writeConf(t, dir, `DataDir: data
LogLevel: info
PackageLogLevels:
	extract: debug
Listen: localhost:8520
`)

	static, errs := Load(p)
	if len(errs) > 0 {
		t.Fatalf("load: %v", errs)
	}
	if static.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("datadir, got %q", static.DataDir)
	}
	if static.MaxMessageSize != DefaultMaxMessageSize {
		t.Fatalf("maxmessagesize, got %d", static.MaxMessageSize)
	}
	levels := static.LogLevels()
	if levels[""] != mlog.LevelInfo || levels["extract"] != mlog.LevelDebug {
		t.Fatalf("loglevels, got %v", levels)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, errs := Load(filepath.Join(dir, "absent.conf")); len(errs) == 0 {
		t.Fatalf("load of missing file, got no errors")
	}

	p := writeConf(t, dir, `DataDir: data
LogLevel: chatty
Listen: localhost:8520
`)
	if _, errs := Load(p); len(errs) == 0 {
		t.Fatalf("load with bad log level, got no errors")
	}
}
