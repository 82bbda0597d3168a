/*
Command mex extracts file attachments from raw email messages.

Mex parses MIME multipart messages with a tolerant, line-based parser,
recognizes attachment parts, decodes their base64 bodies and resolves their
filenames. It can be used from the command-line or run as an HTTP server with
a sherpa API, a raw extraction endpoint and prometheus metrics, optionally
persisting attachments deduplicated by content hash.
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mjl-/sconf"

	"github.com/mjl-/mex/config"
	"github.com/mjl-/mex/extract"
	"github.com/mjl-/mex/mexvar"
	"github.com/mjl-/mex/mlog"
	"github.com/mjl-/mex/store"
)

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"serve", cmdServe},
	{"extract", cmdExtract},
	{"pdfcheck", cmdPdfcheck},
	{"store list", cmdStoreList},
	{"store get", cmdStoreGet},
	{"store rm", cmdStoreRemove},
	{"config test", cmdConfigTest},
	{"config describe", cmdConfigDescribe},
	{"config example", cmdConfigExample},
	{"setadminpassword", cmdSetadminpassword},
	{"loglevels", cmdLoglevels},
	{"version", cmdVersion},
	{"help", cmdHelp},

	// Not listed.
	{"helpall", cmdHelpall},
}

var cmds []cmd

func init() {
	for _, xc := range commands {
		c := cmd{words: strings.Split(xc.cmd, " "), fn: xc.fn}
		cmds = append(cmds, c)
	}
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	// Set before calling command.
	flag     *flag.FlagSet
	flagArgs []string
	_gather  bool // Set when using Parse to gather usage for a command.

	// Set by invoked command or Parse.
	unlisted bool   // If set, command is not listed until at least some words are matched from command.
	params   string // Arguments to command. Multiple lines possible.
	help     string // Additional explanation. First line is synopsis, the rest is only printed for an explicit help/usage for that command.
	args     []string

	log *mlog.Log
}

func (c *cmd) Parse() []string {
	// To gather params and usage information, we just run the command but cause this
	// panic after the command has registered its flags and set its params and help
	// information. This is then caught and that info printed.
	if c._gather {
		panic("gather")
	}

	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) gather() {
	c.flag = flag.NewFlagSet("mex "+strings.Join(c.words, " "), flag.ExitOnError)
	c._gather = true
	defer func() {
		x := recover()
		// panic generated by Parse.
		if x != "gather" {
			panic(x)
		}
	}()
	c.fn(c)
}

func (c *cmd) makeUsage() string {
	var r strings.Builder
	cs := "mex " + strings.Join(c.words, " ")
	for i, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
		s := ""
		if i == 0 {
			s = "usage:"
		}
		if line != "" {
			line = " " + line
		}
		fmt.Fprintf(&r, "%6s %s%s\n", s, cs, line)
	}
	c.flag.SetOutput(&r)
	c.flag.PrintDefaults()
	return r.String()
}

func (c *cmd) printUsage() {
	fmt.Fprint(os.Stderr, c.makeUsage())
	if c.help != "" {
		fmt.Fprint(os.Stderr, "\n"+c.help+"\n")
	}
}

func (c *cmd) Usage() {
	c.printUsage()
	os.Exit(2)
}

func cmdHelp(c *cmd) {
	c.params = "[command ...]"
	c.help = `Prints help about matching commands.

If multiple commands match, they are listed along with the first line of their help text.
If a single command matches, its usage and full help text is printed.
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	prefix := func(l, pre []string) bool {
		if len(pre) > len(l) {
			return false
		}
		return slices.Equal(pre, l[:len(pre)])
	}

	var partial []cmd
	for _, c := range cmds {
		if slices.Equal(c.words, args) {
			c.gather()
			fmt.Print(c.makeUsage())
			if c.help != "" {
				fmt.Print("\n" + c.help + "\n")
			}
			return
		} else if prefix(c.words, args) {
			partial = append(partial, c)
		}
	}
	if len(partial) == 0 {
		fmt.Fprintf(os.Stderr, "%s: unknown command\n", strings.Join(args, " "))
		os.Exit(2)
	}
	for _, c := range partial {
		c.gather()
		line := "mex " + strings.Join(c.words, " ")
		fmt.Printf("%s\n", line)
		if c.help != "" {
			fmt.Printf("\t%s\n", strings.Split(c.help, "\n")[0])
		}
	}
}

func cmdHelpall(c *cmd) {
	c.unlisted = true
	c.help = `Print all detailed usage and help information for all listed commands.

Used to generate documentation.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	n := 0
	for _, c := range cmds {
		c.gather()
		if c.unlisted {
			continue
		}
		if n > 0 {
			fmt.Fprintf(os.Stderr, "\n")
		}
		n++

		fmt.Fprintf(os.Stderr, "# mex %s\n\n", strings.Join(c.words, " "))
		if c.help != "" {
			fmt.Fprintln(os.Stderr, c.help+"\n")
		}
		s := c.makeUsage()
		s = "\t" + strings.ReplaceAll(s, "\n", "\n\t")
		fmt.Fprintln(os.Stderr, s)
	}
}

func usage(l []cmd, unlisted bool) {
	var lines []string
	if !unlisted {
		lines = append(lines, "mex [-config mex.conf] [-loglevel level] ...")
	}
	for _, c := range l {
		c.gather()
		if c.unlisted && !unlisted {
			continue
		}
		for _, line := range strings.Split(c.params, "\n") {
			x := append([]string{"mex"}, c.words...)
			if line != "" {
				x = append(x, line)
			}
			lines = append(lines, strings.Join(x, " "))
		}
	}
	for i, line := range lines {
		pre := "       "
		if i == 0 {
			pre = "usage: "
		}
		fmt.Fprintln(os.Stderr, pre+line)
	}
	os.Exit(2)
}

func envString(k, def string) string {
	s := os.Getenv(k)
	if s == "" {
		return def
	}
	return s
}

var configPath string
var loglevel string // Empty will be interpreted as info.

// mustLoadConfig loads the config file for subcommands that need it. A
// loglevel specified on the command-line overrides the levels from the config
// file.
func mustLoadConfig() config.Static {
	static, errs := config.Load(configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			log.Printf("config error: %s", err)
		}
		log.Fatalf("loading config file %q", configPath)
	}
	levels := static.LogLevels()
	if loglevel != "" {
		level, ok := mlog.Levels[loglevel]
		if !ok {
			log.Fatalf("unknown loglevel %q", loglevel)
		}
		levels[""] = level
	}
	mlog.SetConfig(levels)
	if static.MaxNestingDepth > 0 {
		extract.MaxDepth = static.MaxNestingDepth
	}
	return static
}

func main() {
	log.SetFlags(0)

	flag.StringVar(&configPath, "config", envString("MEXCONF", "mex.conf"), "configuration file, defaults to $MEXCONF with a fallback to mex.conf")
	flag.StringVar(&loglevel, "loglevel", "", "if non-empty, this log level is set early in startup")

	flag.Usage = func() { usage(cmds, false) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage(cmds, false)
	}

	ll := loglevel
	if ll == "" {
		ll = "info"
	}
	if level, ok := mlog.Levels[ll]; ok {
		mlog.SetConfig(map[string]mlog.Level{"": level})
		// note: SetConfig may be called again when subcommands load config.
	} else {
		log.Fatalf("unknown loglevel %q", loglevel)
	}

	var partial []cmd
next:
	for _, c := range cmds {
		for i, w := range c.words {
			if i >= len(args) || w != args[i] {
				if i > 0 {
					partial = append(partial, c)
				}
				continue next
			}
		}
		c.flag = flag.NewFlagSet("mex "+strings.Join(c.words, " "), flag.ExitOnError)
		c.flagArgs = args[len(c.words):]
		c.log = mlog.New(strings.Join(c.words, ""))
		c.fn(&c)
		return
	}
	if len(partial) > 0 {
		usage(partial, true)
	}
	usage(cmds, false)
}

func xcheckf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Fatalf("%s: %s", msg, err)
}

// xreadMessage reads the message from path, "-" means stdin.
func xreadMessage(path string) []byte {
	if path == "-" {
		buf, err := io.ReadAll(os.Stdin)
		xcheckf(err, "reading message from stdin")
		return buf
	}
	buf, err := os.ReadFile(path)
	xcheckf(err, "reading message file")
	return buf
}

func cmdExtract(c *cmd) {
	c.params = "[-dir directory | -json] messagefile"
	c.help = `Extract attachments from an email message.

The message is parsed as MIME multipart and each attachment found is listed.
With -dir, attachment data is written to files in the given directory, named
after the attachment filename with any path elements removed. With -json, a
JSON array with attachment metadata and base64 data is printed instead.
Messagefile "-" reads the message from stdin.
`
	var dir string
	var asJSON bool
	c.flag.StringVar(&dir, "dir", "", "write attachment data to files in this directory")
	c.flag.BoolVar(&asJSON, "json", false, "print attachments as JSON instead of a listing")
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	msg := xreadMessage(args[0])
	attachments, diag := extract.ExtractDiag(context.Background(), msg)
	c.log.Debug("extracted", mlog.Field("attachments", len(attachments)), mlog.Field("parts", diag.Parts))

	if asJSON {
		type attachment struct {
			Filename   string
			MediaType  string
			ContentID  string
			Size       int64
			DataBase64 []byte
		}
		l := make([]attachment, len(attachments))
		for i, a := range attachments {
			l[i] = attachment{a.Filename, a.MediaType, a.ContentID, int64(len(a.Data)), a.Data}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "\t")
		err := enc.Encode(l)
		xcheckf(err, "writing json")
		return
	}

	seen := map[string]int{}
	for _, a := range attachments {
		if dir != "" {
			// Attachment filenames are attacker-controlled, keep only the base name.
			name := filepath.Base(filepath.FromSlash(a.Filename))
			if name == "." || name == string(filepath.Separator) || name == "" {
				name = extract.FallbackFilename
			}
			if n := seen[name]; n > 0 {
				seen[name]++
				name = fmt.Sprintf("%d-%s", n, name)
			} else {
				seen[name] = 1
			}
			p := filepath.Join(dir, name)
			err := os.WriteFile(p, a.Data, 0660)
			xcheckf(err, "writing attachment file %q", p)
			fmt.Printf("%s\t%d\t%s\n", p, len(a.Data), a.MediaType)
		} else {
			fmt.Printf("%s\t%d\t%s\n", a.Filename, len(a.Data), a.MediaType)
		}
	}
}

func cmdPdfcheck(c *cmd) {
	c.params = "file.pdf"
	c.help = `Check the basic structure of a PDF file.

Verifies the %PDF- signature, the %%EOF marker near the end of the file and
the startxref offset. Findings are printed one per line and result in a
non-zero exit code. The checks are structural only, a file without findings
is not necessarily a valid PDF.
`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}

	buf, err := os.ReadFile(args[0])
	xcheckf(err, "reading pdf file")
	findings := extract.CheckPDF(buf)
	for _, s := range findings {
		fmt.Println(s)
	}
	if len(findings) > 0 {
		os.Exit(1)
	}
	fmt.Println("ok")
}

func cmdStoreList(c *cmd) {
	c.help = `List stored attachments, newest first.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	static := mustLoadConfig()

	db, err := store.Open(context.Background(), static.DataDir)
	xcheckf(err, "opening attachment database")
	defer db.Close()

	l, err := db.List(context.Background())
	xcheckf(err, "listing attachments")
	for _, a := range l {
		fmt.Printf("%d\t%s\t%d\t%s\t%s\t%s\n", a.ID, a.Filename, a.Size, a.MediaType, a.Created.Format("2006-01-02 15:04:05"), a.Hash)
	}
}

func cmdStoreGet(c *cmd) {
	c.params = "id [destination]"
	c.help = `Write the data of a stored attachment to a file.

Without a destination, the data is written to the attachment filename in the
current directory, with any path elements removed.
`
	args := c.Parse()
	if len(args) != 1 && len(args) != 2 {
		c.Usage()
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	xcheckf(err, "parsing id")
	static := mustLoadConfig()

	db, err := store.Open(context.Background(), static.DataDir)
	xcheckf(err, "opening attachment database")
	defer db.Close()

	a, err := db.Get(context.Background(), id)
	xcheckf(err, "fetching attachment")
	dest := filepath.Base(filepath.FromSlash(a.Filename))
	if len(args) == 2 {
		dest = args[1]
	}
	err = os.WriteFile(dest, a.Data, 0660)
	xcheckf(err, "writing attachment file %q", dest)
	fmt.Printf("%s\t%d\t%s\n", dest, a.Size, a.MediaType)
}

func cmdStoreRemove(c *cmd) {
	c.params = "id"
	c.help = `Remove a stored attachment.`
	args := c.Parse()
	if len(args) != 1 {
		c.Usage()
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	xcheckf(err, "parsing id")
	static := mustLoadConfig()

	db, err := store.Open(context.Background(), static.DataDir)
	xcheckf(err, "opening attachment database")
	defer db.Close()

	err = db.Remove(context.Background(), id)
	xcheckf(err, "removing attachment")
}

func cmdConfigTest(c *cmd) {
	c.help = `Parses and validates the configuration file.

If valid, the command exits with status 0. If invalid, all errors encountered
are printed.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	_, errs := config.Load(configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Printf("error: %s\n", err)
		}
		os.Exit(1)
	}
	fmt.Println("config OK")
}

func cmdConfigDescribe(c *cmd) {
	c.params = ">mex.conf"
	c.help = `Prints an annotated empty configuration file.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	var static config.Static
	err := sconf.Describe(os.Stdout, &static)
	xcheckf(err, "describing config")
}

func cmdConfigExample(c *cmd) {
	c.params = ">mex.conf"
	c.help = `Prints an example configuration file with usable defaults.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	static := config.Static{
		DataDir:  "data",
		LogLevel: "info",
		Listen:   "localhost:8520",
	}
	err := sconf.Describe(os.Stdout, &static)
	xcheckf(err, "describing config")
}

func cmdSetadminpassword(c *cmd) {
	c.help = `Set a new admin password, for the HTTP API.

The password is read from stdin. Its bcrypt hash is stored in the admin
password file from the configuration.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	static := mustLoadConfig()
	if static.AdminPasswordFile == "" {
		log.Fatal("no admin password file configured")
	}

	pw := xreadpassword()
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	xcheckf(err, "generating hash for password")
	err = os.WriteFile(static.AdminPasswordFile, hash, 0660)
	xcheckf(err, "writing admin password file")
}

func xreadpassword() string {
	fmt.Printf(`
Type new password. Password WILL echo.

WARNING: Bots will try to bruteforce your password. Connections with failed
authentication attempts will be rate limited but attackers WILL find weak
passwords. If your account is compromised, spammers are likely to abuse your
system, spamming your address and the wider internet in your name. So please
pick a random, unguessable password, preferably at least 12 characters.

`)
	fmt.Printf("password: ")
	buf := make([]byte, 64)
	n, err := os.Stdin.Read(buf)
	xcheckf(err, "reading stdin")
	pw := string(buf[:n])
	pw = strings.TrimSuffix(strings.TrimSuffix(pw, "\n"), "\r")
	if len(pw) < 8 {
		log.Fatal("password must be at least 8 characters")
	}
	return pw
}

func cmdLoglevels(c *cmd) {
	c.help = `Print the log levels from the configuration file.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	static := mustLoadConfig()

	for pkg, level := range static.LogLevels() {
		if pkg == "" {
			pkg = "(default)"
		}
		fmt.Printf("%s: %s\n", pkg, mlog.LevelStrings[level])
	}
}

func cmdVersion(c *cmd) {
	c.help = `Prints this mex version.`
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	fmt.Println(mexvar.Version)
}
