// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"runtime/debug"
	"sort"

	"github.com/google/renameio/v2/maybe"
	"github.com/pkg/diff"
	diffwrite "github.com/pkg/diff/write"
	"golang.org/x/term"
	"mvdan.cc/editorconfig"

	"mvdan.cc/bashmodel/fileutil"
	"mvdan.cc/bashmodel/script"
	"mvdan.cc/bashmodel/validate"
)

var (
	showVersion = flag.Bool("version", false, "")
	verbose     = flag.Bool("v", false, "")

	list  = flag.Bool("l", false, "")
	find  = flag.Bool("f", false, "")
	write = flag.Bool("w", false, "")

	baseline = flag.String("baseline", "", "")
	filename = flag.String("filename", "", "")

	ignoreBlock = flag.Bool("ignore-block", false, "")
	ignoreDo    = flag.Bool("ignore-do", false, "")
	ignoreIf    = flag.Bool("ignore-if", false, "")
	ignoreFunc  = flag.Bool("ignore-func", false, "")

	toJSON = flag.Bool("tojson", false, "")

	// useEditorConfig will be false if any validation flags were used.
	useEditorConfig = true

	flagConfig script.Config
	logger     *slog.Logger

	copyBuf = make([]byte, 32*1024)

	in    io.Reader = os.Stdin
	out   io.Writer = os.Stdout
	color bool

	version = "(devel)" // to match the default from runtime/debug
)

func main() {
	os.Exit(main1())
}

func main1() int {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: shcheck [flags] [path ...]

If the only argument is a dash ('-') or no arguments are given, standard input
will be used. If a given path is a directory, it will be recursively searched
for Bash scripts - both by filename extension and by shebang.

  -version  show version and exit
  -v        log what is being checked to standard error

  -l        list files with findings, instead of the findings themselves
  -f        recursively find all shell files and print the paths

Validation options:

  -ignore-block  do not report unbalanced braces, subshells and case
  -ignore-do     do not report unbalanced do and done
  -ignore-if     do not report malformed if statements
  -ignore-func   do not report functions without a proper body
  -filename str  provide a name for the standard input file

Baselines:

  -baseline f  error with a diff when the findings differ from file f
  -w           write the findings to the -baseline file instead

Utilities:

  -tojson   print the script model to stdout as a typed JSON
`)
	}
	flag.Parse()

	if *showVersion {
		// don't overwrite the version if it was set by -ldflags=-X
		if info, ok := debug.ReadBuildInfo(); ok && version == "(devel)" {
			mod := &info.Main
			if mod.Replace != nil {
				mod = mod.Replace
			}
			version = mod.Version
		}
		fmt.Println(version)
		return 0
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *write && *baseline == "" {
		fmt.Fprintln(os.Stderr, "-w can only be used with -baseline")
		return 1
	}
	if os.Getenv("SHCHECK_NO_EDITORCONFIG") == "true" {
		useEditorConfig = false
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ignore-block", "ignore-do", "ignore-if", "ignore-func":
			useEditorConfig = false
		}
	})
	flagConfig = script.Config{
		IgnoreBlockValidation:    *ignoreBlock,
		IgnoreDoValidation:       *ignoreDo,
		IgnoreIfValidation:       *ignoreIf,
		IgnoreFunctionValidation: *ignoreFunc,
	}

	if os.Getenv("FORCE_COLOR") == "true" {
		// Undocumented way to force color; used in the tests.
		color = true
	} else if os.Getenv("TERM") == "dumb" {
		// Equivalent to forcing color to be turned off.
	} else if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		color = true
	}

	var c checker
	if flag.NArg() == 0 || (flag.NArg() == 1 && flag.Arg(0) == "-") {
		name := "<standard input>"
		if *filename != "" {
			name = *filename
		}
		if err := c.addStdin(name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if *toJSON {
			return 0
		}
		return c.report(context.Background())
	}
	if *filename != "" {
		fmt.Fprintln(os.Stderr, "-filename can only be used with stdin")
		return 1
	}
	if *toJSON {
		fmt.Fprintln(os.Stderr, "-tojson can only be used with stdin")
		return 1
	}
	status := 0
	for _, path := range flag.Args() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() && !*find {
			// When given paths to files directly, always check
			// them, no matter their extension or shebang.
			//
			// The only exception is the -f flag; in that case, we
			// do want to report whether the file is a shell script.
			if err := c.addPath(path, false); err != nil {
				fmt.Fprintln(os.Stderr, err)
				status = 1
			}
			continue
		}
		if err := filepath.Walk(path, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			switch err := c.walkPath(path, info); err {
			case nil:
			case filepath.SkipDir:
				return err
			default:
				fmt.Fprintln(os.Stderr, err)
				status = 1
			}
			return nil
		}); err != nil {
			// Something went wrong walking the filesystem; stop.
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if *find {
		return status
	}
	if c.report(context.Background()) != 0 {
		status = 1
	}
	return status
}

// checker gathers the documents to validate, grouped by the validation
// configuration that applies to each of them.
type checker struct {
	groups map[script.Config][]validate.Document
	lines  map[string]*validate.TextLines
}

func (c *checker) add(cfg script.Config, doc validate.Document) {
	if c.groups == nil {
		c.groups = make(map[script.Config][]validate.Document)
		c.lines = make(map[string]*validate.TextLines)
	}
	lines := validate.NewTextLines(doc.Text)
	doc.Lines = lines
	c.lines[doc.Resource] = lines
	c.groups[cfg] = append(c.groups[cfg], doc)
}

func (c *checker) addStdin(name string) error {
	src, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return c.addBytes(src, name)
}

var vcsDir = regexp.MustCompile(`^\.(git|svn|hg)$`)

func (c *checker) walkPath(path string, info fs.FileInfo) error {
	if info.IsDir() && vcsDir.MatchString(info.Name()) {
		return filepath.SkipDir
	}
	if useEditorConfig {
		props, err := ecQuery.Find(path)
		if err != nil {
			return err
		}
		if props.Get("ignore") == "true" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
	}
	conf := fileutil.Classify(info)
	if conf == fileutil.NotScript {
		return nil
	}
	err := c.addPath(path, conf == fileutil.IfShebang)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var ecQuery = editorconfig.Query{
	FileCache:   make(map[string]*editorconfig.File),
	RegexpCache: make(map[string]*regexp.Regexp),
}

// propsConfig turns editorconfig properties into a validation
// configuration. Every check is enabled unless set to "false".
func propsConfig(props editorconfig.Section) script.Config {
	return script.Config{
		IgnoreBlockValidation:    props.Get("validate_block_statements") == "false",
		IgnoreDoValidation:       props.Get("validate_do_statements") == "false",
		IgnoreIfValidation:       props.Get("validate_if_statements") == "false",
		IgnoreFunctionValidation: props.Get("validate_function_statements") == "false",
	}
}

func (c *checker) addPath(path string, checkShebang bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var readBuf bytes.Buffer
	if checkShebang {
		n, err := io.ReadFull(f, copyBuf[:fileutil.HeaderSize])
		if err != nil && err != io.ErrUnexpectedEOF {
			return err
		}
		if !fileutil.HasShebang(copyBuf[:n]) {
			return nil
		}
		readBuf.Write(copyBuf[:n])
	}
	if *find {
		fmt.Fprintln(out, path)
		return nil
	}
	if _, err := io.CopyBuffer(&readBuf, f, copyBuf); err != nil {
		return err
	}
	f.Close()
	return c.addBytes(readBuf.Bytes(), path)
}

func (c *checker) addBytes(src []byte, path string) error {
	cfg := flagConfig
	if useEditorConfig {
		props, err := ecQuery.Find(path)
		if err != nil {
			return err
		}
		cfg = propsConfig(props)
	}
	logger.Debug("checking", "path", path, "config", fmt.Sprintf("%+v", cfg))
	if *toJSON {
		// must be standard input; fine to return
		m, err := script.Build(string(src), cfg)
		if err != nil {
			return err
		}
		return writeJSON(out, m, true)
	}
	c.add(cfg, validate.Document{Resource: path, Text: string(src)})
	return nil
}

// report validates all documents and prints their findings, or compares
// them against the baseline. It returns the exit status.
func (c *checker) report(ctx context.Context) int {
	var col validate.Collector
	status := 0
	configs := make([]script.Config, 0, len(c.groups))
	for cfg := range c.groups {
		configs = append(configs, cfg)
	}
	// deterministic order for logging
	sort.Slice(configs, func(i, j int) bool {
		return fmt.Sprint(configs[i]) < fmt.Sprint(configs[j])
	})
	for _, cfg := range configs {
		v := validate.New(script.NewBuilder(script.WithConfig(cfg)),
			validate.WithLogger(logger),
			validate.WithConcurrency(runtime.GOMAXPROCS(0)))
		if err := v.ValidateAll(ctx, c.groups[cfg], &col); err != nil {
			// one line per document which could not be built
			fmt.Fprintln(os.Stderr, err)
			status = 1
		}
	}
	markers := col.Markers()

	var buf bytes.Buffer
	seen := make(map[string]bool)
	for _, m := range markers {
		if m.Severity == script.SeverityError && *baseline == "" {
			status = 1
		}
		if *list {
			if !seen[m.Resource] {
				seen[m.Resource] = true
				fmt.Fprintln(&buf, m.Resource)
			}
			continue
		}
		fmt.Fprintln(&buf, c.format(m))
	}
	if *baseline == "" {
		if _, err := out.Write(buf.Bytes()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return status
	}
	if err := compareBaseline(*baseline, buf.Bytes()); err != nil {
		if err != errChangedWithDiff {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return status
}

// format prints a marker as "path:line:col: message", with 1-based lines
// and columns.
func (c *checker) format(m validate.Marker) string {
	line, col := m.Line+1, 1
	if lines := c.lines[m.Resource]; lines != nil {
		if start := lines.LineStart(m.Line); start >= 0 {
			col = m.Start - start + 1
		}
	}
	if m.Severity == script.SeverityWarning {
		return fmt.Sprintf("%s:%d:%d: warning: %s", m.Resource, line, col, m.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Resource, line, col, m.Message)
}

var errChangedWithDiff = fmt.Errorf("")

func compareBaseline(path string, findings []byte) error {
	if *write {
		return maybe.WriteFile(path, findings, 0o666)
	}
	old, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if bytes.Equal(old, findings) {
		return nil
	}
	opts := []diffwrite.Option{}
	if color {
		opts = append(opts, diffwrite.TerminalColor())
	}
	if err := diff.Text(path, "findings", old, findings, out, opts...); err != nil {
		return fmt.Errorf("computing diff: %s", err)
	}
	return errChangedWithDiff
}
