// Package config holds the static configuration of mex, parsed from an sconf
// file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mjl-/sconf"

	"github.com/mjl-/mex/mlog"
)

// DefaultMaxMessageSize is the maximum size in bytes of messages accepted for
// extraction over the HTTP API, if not configured.
const DefaultMaxMessageSize = 100 * 1024 * 1024

// Static is the parsed form of the mex.conf configuration file.
type Static struct {
	DataDir           string            `sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nDirectory where the attachment database is stored. If this is a relative path, it is relative to the directory of mex.conf."`
	LogLevel          string            `sconf-doc:"Default log level, one of: error, info, debug."`
	PackageLogLevels  map[string]string `sconf:"optional" sconf-doc:"Overrides of log level per package (e.g. extract, webapi, store)."`
	Listen            string            `sconf-doc:"Address the HTTP API listens on, e.g. localhost:8520. The API serves sherpa calls at /api/, raw extraction at /extract and prometheus metrics at /metrics."`
	AdminPasswordFile string            `sconf:"optional" sconf-doc:"File containing bcrypt hash of the password required for HTTP basic auth (user 'admin') on the API. If empty, no authentication is required."`
	MaxMessageSize    int64             `sconf:"optional" sconf-doc:"Maximum size in bytes of a message accepted for extraction over the HTTP API. Default 100MB."`
	MaxNestingDepth   int               `sconf:"optional" sconf-doc:"Maximum multipart nesting depth descended into when extracting. More deeply nested branches are skipped. Default 20."`
}

// Load parses the static config at path p and checks it, returning all
// problems found.
func Load(p string) (Static, []error) {
	static := Static{
		DataDir: ".",
	}

	f, err := os.Open(p)
	if err != nil {
		return static, []error{fmt.Errorf("open config file: %v", err)}
	}
	defer f.Close()
	if err := sconf.Parse(f, &static); err != nil {
		return static, []error{fmt.Errorf("parsing %s%v", p, err)}
	}

	// Relative paths are relative to the directory of the config file.
	dir := filepath.Dir(p)
	if !filepath.IsAbs(static.DataDir) {
		static.DataDir = filepath.Join(dir, static.DataDir)
	}
	if static.AdminPasswordFile != "" && !filepath.IsAbs(static.AdminPasswordFile) {
		static.AdminPasswordFile = filepath.Join(dir, static.AdminPasswordFile)
	}

	return static, static.check()
}

func (c *Static) check() (errs []error) {
	addErrorf := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := mlog.Levels[c.LogLevel]; !ok {
		addErrorf("invalid log level %q", c.LogLevel)
	}
	for pkg, s := range c.PackageLogLevels {
		if _, ok := mlog.Levels[s]; !ok {
			addErrorf("invalid package log level %q for package %q", s, pkg)
		}
	}
	if c.Listen == "" {
		addErrorf("missing listen address")
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	} else if c.MaxMessageSize < 0 {
		addErrorf("negative max message size")
	}
	if c.MaxNestingDepth < 0 {
		addErrorf("negative max nesting depth")
	}
	return errs
}

// LogLevels returns the parsed log level configuration for mlog.SetConfig.
// Must be called on a checked config.
func (c *Static) LogLevels() map[string]mlog.Level {
	levels := map[string]mlog.Level{"": mlog.Levels[c.LogLevel]}
	for pkg, s := range c.PackageLogLevels {
		levels[pkg] = mlog.Levels[s]
	}
	return levels
}
