// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/hashicorp/go-argrep"
	"github.com/hashicorp/go-argrep/filter"
	"github.com/hashicorp/go-argrep/internal/output"
	"github.com/hashicorp/go-argrep/internal/runner"
	"github.com/hashicorp/go-argrep/search"
	"github.com/hashicorp/go-argrep/telemetry"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CLI are the cli parameters for the argrep binary. Arguments after "--" are passed
// to the grep tool of the exec backend.
type CLI struct {
	Roots              []string         `arg:"" optional:"" name:"path" help:"Files, directories or archives to search."`
	Inputs             []string         `short:"i" name:"input" sep:"none" help:"Additional path to search, repeatable."`
	Patterns           []string         `short:"e" name:"regexp" sep:"none" help:"Search pattern, repeatable. A line matches if any pattern matches."`
	IgnoreCase         bool             `name:"ignore-case" help:"Match patterns case insensitively."`
	PathPatterns       []string         `name:"pe" sep:"none" help:"Only search files whose path matches one of these patterns. Prefix with \"glob:\" for shell globs."`
	NamePatterns       []string         `name:"fe" sep:"none" help:"Only search files whose name matches one of these patterns."`
	ExtPatterns        []string         `name:"ee" sep:"none" help:"Only search files whose extension (with dot) matches one of these patterns."`
	IgnoreInvalidRegex bool             `name:"ignore-invalid-regex" help:"Continue with the valid filter patterns if some are invalid."`
	Backend            string           `default:"builtin" enum:"builtin,exec" help:"Search backend: builtin regexp or the grep tools (grep, zgrep, xzgrep, ...)."`
	List               bool             `short:"l" help:"List the walked files instead of searching them."`
	TempDir            string           `name:"td" type:"path" help:"Parent directory of the extraction directory of the run. (default: system temp dir)"`
	Keep               bool             `help:"Keep the extracted files."`
	JSON               bool             `name:"json" help:"Print JSON lines."`
	Parallel           int              `short:"P" default:"1" help:"Number of paths searched concurrently."`
	MaxDepth           int              `default:"-1" help:"Maximum nesting depth of archives. (disable check: -1)"`
	NoRecurse          bool             `name:"no-recurse" help:"Do not descend into nested archives, same as --max-depth=0."`
	SkipFormats        []string         `name:"skip-format" help:"Archive formats that are searched as files instead of being walked (${formats}). (default: mtree)"`
	Type               string           `help:"Archive type used for files without known magic bytes, e.g. br."`
	MaxFiles           int64            `default:"${max_files}" help:"Maximum entries of an archive. (disable check: -1)"`
	MaxExtractionSize  int64            `default:"${max_extraction_size}" help:"Maximum extracted bytes of an archive. (disable check: -1)"`
	MaxInputSize       int64            `default:"${max_input_size}" help:"Maximum size of an archive. (disable check: -1)"`
	DenySymlinks       bool             `short:"D" help:"Deny symlink extraction."`
	ExtractionFlags    string           `default:"${extraction_flags}" help:"Restored entry attributes, \"|\" separated: perm, time, owner, acl, fflags or none."`
	Timeout            time.Duration    `help:"Cancel the run after this duration. (disable: 0)"`
	Telemetry          bool             `help:"Log telemetry data of every extracted archive."`
	CloudWatchSource   string           `name:"cloudwatch-source" help:"Submit telemetry data as CloudWatch events with this source."`
	AWSRegion          string           `name:"aws-region" help:"AWS region of the CloudWatch events bus."`
	Verbose            bool             `short:"v" help:"Verbose logging."`
	LogFormat          string           `default:"text" enum:"text,json" help:"Log format: text or json."`
	LogFile            string           `type:"path" help:"Write logs to a rotated file instead of stderr."`
	Config             kong.ConfigFlag  `help:"YAML configuration file with flag defaults. (default: ~/.config/argrep/config.yaml)"`
	Version            kong.VersionFlag `short:"V" help:"Print release version information."`
}

// Run the entrypoint into argrep as a cli tool
func Run(version, commit, date string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr,
		fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date))
	stop()
	os.Exit(code)
}

// Execute parses args, runs the search and returns the exit code: 0 if something
// matched, 1 if nothing matched and 2 on errors.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, version string) int {
	args, grepFlags := splitPassthrough(args)

	var cli CLI
	fc := &fileConfig{}
	defaults := argrep.NewConfig()
	parser, err := kong.New(&cli,
		kong.Name("argrep"),
		kong.Description("Search patterns in files and in archives nested at any depth"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Configuration(fc.loader, defaultConfigFile),
		kong.Vars{
			"version":             version,
			"formats":             strings.Join(argrep.FormatNames(), ", "),
			"max_files":           strconv.FormatInt(defaults.MaxFiles(), 10),
			"max_extraction_size": strconv.FormatInt(defaults.MaxExtractionSize(), 10),
			"max_input_size":      strconv.FormatInt(defaults.MaxInputSize(), 10),
			"extraction_flags":    defaults.ExtractionFlags().String(),
		},
	)
	if err != nil {
		fmt.Fprintln(stderr, "[ERR]", err)
		return runner.ExitError
	}
	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintln(stderr, "[ERR]", err)
		return runner.ExitError
	}
	cli.merge(fc)

	logger, closeLog := cli.logger(stderr)
	defer closeLog()

	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	sink := output.New(cli.JSON, runID, stdout, stderr)

	code, err := cli.run(ctx, runID, grepFlags, sink, logger)
	if err != nil {
		sink.Error(err.Error())
		logger.Debug("run failed", "error", fmt.Sprintf("%+v", err))
		return runner.ExitError
	}
	return code
}

// splitPassthrough separates the arguments after the first "--".
func splitPassthrough(args []string) ([]string, []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

// merge applies list values of the configuration file to list flags that are not
// set on the command line.
func (c *CLI) merge(fc *fileConfig) {
	for key, target := range map[string]*[]string{
		"input":       &c.Inputs,
		"regexp":      &c.Patterns,
		"pe":          &c.PathPatterns,
		"fe":          &c.NamePatterns,
		"ee":          &c.ExtPatterns,
		"skip-format": &c.SkipFormats,
	} {
		if len(*target) == 0 {
			*target = fc.list(key)
		}
	}
}

// logger creates the logger of the run. The returned function closes a log file.
func (c *CLI) logger(stderr io.Writer) (*slog.Logger, func()) {
	logLevel := slog.LevelError
	if c.Verbose {
		logLevel = slog.LevelDebug
	}

	w := stderr
	closeFn := func() {}
	if len(c.LogFile) > 0 {
		lj := &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = lj
		closeFn = func() { lj.Close() }
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), closeFn
	}
	return slog.New(slog.NewTextHandler(w, opts)), closeFn
}

// config creates the extraction configuration from the flags.
func (c *CLI) config(ctx context.Context, logger *slog.Logger, summary *telemetry.Summary) (*argrep.Config, error) {
	flags, err := argrep.ParseExtractionFlags(c.ExtractionFlags)
	if err != nil {
		return nil, errors.Wrap(err, "invalid --extraction-flags")
	}

	skippable := []argrep.Format{argrep.FormatMtree}
	for _, name := range c.SkipFormats {
		f, err := argrep.ParseFormat(name)
		if err != nil {
			return nil, errors.Wrap(err, "invalid --skip-format")
		}
		skippable = append(skippable, f)
	}

	maxDepth := c.MaxDepth
	if c.NoRecurse {
		maxDepth = 0
	}

	hooks := []argrep.TelemetryHook{summary.Hook()}
	if c.Telemetry {
		hooks = append(hooks, telemetry.LogHook(logger))
	}
	if len(c.CloudWatchSource) > 0 {
		client, err := telemetry.NewCloudWatchClient(ctx, c.AWSRegion)
		if err != nil {
			return nil, errors.Wrap(err, "cannot create CloudWatch client")
		}
		hooks = append(hooks, telemetry.CloudWatchHook(client, c.CloudWatchSource, logger))
	}

	return argrep.NewConfig(
		argrep.WithDenySymlinkExtraction(c.DenySymlinks),
		argrep.WithExtractionFlags(flags),
		argrep.WithExtractType(c.Type),
		argrep.WithKeepExtracted(c.Keep),
		argrep.WithLogger(logger),
		argrep.WithMaxDepth(maxDepth),
		argrep.WithMaxExtractionSize(c.MaxExtractionSize),
		argrep.WithMaxFiles(c.MaxFiles),
		argrep.WithMaxInputSize(c.MaxInputSize),
		argrep.WithSkippableFormats(skippable...),
		argrep.WithTelemetryHook(telemetry.Chain(hooks...)),
	), nil
}

// searcher creates the search backend.
func (c *CLI) searcher(grepFlags []string, classifier argrep.Classifier, logger *slog.Logger) (runner.Searcher, error) {
	if c.Backend == "exec" {
		flags := grepFlags
		if c.IgnoreCase {
			flags = append([]string{"-i"}, flags...)
		}
		return search.NewDispatcher(&search.Exec{Patterns: c.Patterns, Flags: flags}, classifier), nil
	}

	if len(grepFlags) > 0 {
		logger.Warn("grep flags are only used by the exec backend", "flags", grepFlags)
	}
	b, err := search.NewBuiltin(c.Patterns, c.IgnoreCase)
	if err != nil {
		return nil, err
	}
	return search.NewDispatcher(b, classifier), nil
}

// filter compiles the filter patterns. Invalid patterns end the run unless
// --ignore-invalid-regex is set.
func (c *CLI) filter(sink output.Sink) (*filter.Filter, error) {
	f, err := filter.New(c.PathPatterns, c.NamePatterns, c.ExtPatterns)
	if err == nil {
		return f, nil
	}

	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		if c.IgnoreInvalidRegex {
			sink.Warn("Ignored invalid regex pattern - " + e.Error())
		} else {
			sink.Error("Caught invalid regex pattern - " + e.Error())
		}
	}
	if !c.IgnoreInvalidRegex {
		return nil, errors.New("exiting due to invalid regex pattern")
	}
	return f, nil
}

// run searches all roots and returns the exit code.
func (c *CLI) run(ctx context.Context, runID string, grepFlags []string, sink output.Sink, logger *slog.Logger) (int, error) {
	roots := append(append([]string{}, c.Roots...), c.Inputs...)
	if len(roots) == 0 {
		return runner.ExitError, errors.New("no path to search provided")
	}
	if len(c.Patterns) == 0 && !c.List {
		return runner.ExitError, errors.New("grep regex patterns not provided")
	}

	flt, err := c.filter(sink)
	if err != nil {
		return runner.ExitError, err
	}

	summary := telemetry.NewSummary()
	cfg, err := c.config(ctx, logger, summary)
	if err != nil {
		return runner.ExitError, err
	}

	classifier := argrep.NewMIMEClassifier()
	var searcher runner.Searcher
	if !c.List {
		if searcher, err = c.searcher(grepFlags, classifier, logger); err != nil {
			return runner.ExitError, errors.Wrap(err, "cannot create search backend")
		}
	}

	r, err := runner.New(runner.Options{
		Roots:      roots,
		TempDir:    c.TempDir,
		RunID:      runID,
		Keep:       c.Keep,
		List:       c.List,
		Parallel:   c.Parallel,
		Config:     cfg,
		Filter:     flt,
		Searcher:   searcher,
		Classifier: classifier,
		Sink:       sink,
		Logger:     logger,
	})
	if err != nil {
		return runner.ExitError, err
	}
	logger.Info("using temporary path for archive extraction", "dir", r.RunDir())

	res, err := r.Run(ctx)
	if err != nil {
		return runner.ExitError, errors.Wrap(err, "run aborted")
	}

	totals := summary.Totals()
	logger.Info("run finished",
		"files", res.Files,
		"matches", res.Matches,
		"errors", res.Errors,
		"archives", totals.Archives,
		"extracted_bytes", totals.Bytes,
		"archive_types", totals.ByType,
	)
	return res.ExitCode(c.List), nil
}
