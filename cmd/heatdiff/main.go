// Command heatdiff compares screenshots against baselines and renders heatmaps of the differences.
//
// Usage:
//
//	heatdiff compare [flags] <baseline> <candidate>
//	heatdiff compare [flags] -suite <baseline-dir> <candidate-dir>
//	heatdiff normalize [flags] <raw.png>
//	heatdiff region [flags] <image.png>
//	heatdiff capture [flags] -url <url>
//	heatdiff inspect <heatmap.jpg>
//	heatdiff approve <candidate> <baseline>
//	heatdiff history [flags]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"heatdiff/pkg/config"
)

// Exit codes.
const (
	exitOK       = 0
	exitMismatch = 1
	exitError    = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"compare", "compare a candidate with its baseline", runCompare},
	{"normalize", "rescale and crop a raw screenshot", runNormalize},
	{"region", "cut an element region out of a normalized screenshot", runRegion},
	{"capture", "take a normalized screenshot with Chrome", runCapture},
	{"inspect", "print the summary embedded in a heatmap", runInspect},
	{"approve", "replace a baseline with a candidate", runApprove},
	{"history", "list recorded comparisons", runHistory},
}

// errMismatch signals a completed comparison whose images are not equal.
var errMismatch = errors.New("images differ")

type env struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	cfg    *config.Config
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configPath, "config", "", "path to heatdiff.yaml")
	fs.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
}

func (g *globalFlags) env(stdout, stderr io.Writer) (*env, error) {
	var level slog.Level
	switch g.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, opts)
	if g.logJSON {
		handler = slog.NewJSONHandler(stderr, opts)
	}

	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath); err != nil {
			return nil, err
		}
	}
	return &env{stdout: stdout, stderr: stderr, logger: slog.New(handler), cfg: cfg}, nil
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: heatdiff <command> [flags] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nRun 'heatdiff <command> -h' for the flags of a command.\n")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return exitError
	}
	name := args[0]
	if name == "-h" || name == "-help" || name == "help" {
		usage(stdout)
		return exitOK
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, &env{stdout: stdout, stderr: stderr}, args[1:]); err != nil {
			switch {
			case errors.Is(err, errMismatch):
				return exitMismatch
			case errors.Is(err, flag.ErrHelp):
				return exitOK
			}
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		return exitOK
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n\n", name)
	usage(stderr)
	return exitError
}

// newFlagSet returns a flag set for a subcommand that reports errors instead of exiting.
func newFlagSet(e *env, name, argsUsage string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	g := &globalFlags{}
	g.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: heatdiff %s [flags] %s\n\nFlags:\n", name, argsUsage)
		fs.PrintDefaults()
	}
	return fs, g
}

// setup parses args and completes e with logger and configuration.
func setup(e *env, fs *flag.FlagSet, g *globalFlags, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	full, err := g.env(e.stdout, e.stderr)
	if err != nil {
		return err
	}
	*e = *full
	return nil
}
