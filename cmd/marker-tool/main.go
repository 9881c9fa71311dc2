// Command marker-tool inspects and repairs motion-capture marker
// trajectories stored as TRC files, and serves editing sessions over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/marker.studio/internal/config"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/version"
)

// errUsage marks a command line the user must fix; usage has been printed.
var errUsage = errors.New("usage error")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"detect", "list outlier frames of a TRC file", runDetect},
	{"interpolate", "fill gaps of a marker with a classical method", runInterpolate},
	{"pattern", "fill gaps of a marker from reference markers", runPattern},
	{"filter", "smooth one or all markers", runFilter},
	{"report", "write summary statistics, plots and charts", runReport},
	{"serve", "serve editing sessions over HTTP and gRPC", runServe},
	{"frames", "list sessions or stream frames from a running serve", runFrames},
	{"migrate", "manage the session database schema", runMigrate},
	{"version", "print build information", runVersion},
}

// env is the state shared by every subcommand.
type env struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.TuningConfig
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: marker-tool [-config file.json] [-v] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.summary)
	}
}

// run parses global flags and dispatches to a subcommand.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("marker-tool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "tuning config JSON (defaults apply when empty)")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			return err
		}
	}

	if fs.NArg() == 0 {
		usage(stderr)
		return errUsage
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, &env{stdout: stdout, stderr: stderr, cfg: cfg}, rest)
		}
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", name)
	usage(stderr)
	return errUsage
}

func runVersion(_ context.Context, e *env, _ []string) error {
	fmt.Fprintln(e.stdout, version.String())
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
