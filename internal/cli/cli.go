// Package cli implements the landingbeacon command line.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/landingbeacon/landingbeacon-go/internal/bootstrap"
	"github.com/landingbeacon/landingbeacon-go/pkg/tracker"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type command struct {
	name    string
	summary string
	// client is set for commands that build a tracking client: they need
	// storage and project credentials.
	client  bool
	run     func(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int
}

var commands = []command{
	{name: "device-id", summary: "print the persisted device id", client: true, run: runDeviceID},
	{name: "status", summary: "print the local email submission status", client: true, run: runStatus},
	{name: "submit", summary: "submit an email address (-email)", client: true, run: runSubmit},
	{name: "track", summary: "send an event (-type, -content, -meta k=v)", client: true, run: runTrack},
	{name: "pageview", summary: "send a VIEW event (-content)", client: true, run: runPageView},
	{name: "cta", summary: "send a CTA event (-section, -content)", client: true, run: runCTA},
	{name: "navigate", summary: "send a NAVIGATE event (-content, -meta k=v)", client: true, run: runNavigate},
	{name: "replay", summary: "send events from a JSON lines file (-file, -concurrency)", client: true, run: runReplay},
	{name: "mock-server", summary: "serve a local collection API (-addr, -static, -db)", run: runMockServer},
}

// Runner executes one command line. Env overrides the environment lookup.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Env    func(string) (string, bool)
}

// Run parses args (without the program name) and returns the exit code.
func (r *Runner) Run(ctx context.Context, args []string) int {
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}

	fs := flag.NewFlagSet("landingbeacon", flag.ContinueOnError)
	fs.SetOutput(r.Stderr)
	configPath := fs.String("config", "", "path to the YAML config file")
	dotEnv := fs.Bool("env", true, "load variables from .env before reading config")
	fs.Usage = func() { r.usage(fs) }
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() == 0 {
		r.usage(fs)
		return ExitUsage
	}

	name := fs.Arg(0)
	cmd, ok := lookup(name)
	if !ok {
		fmt.Fprintf(r.Stderr, "unknown command %q\n\n", name)
		r.usage(fs)
		return ExitUsage
	}

	app, err := bootstrap.Init(ctx, bootstrap.Options{
		ConfigPath:     *configPath,
		DotEnv:         *dotEnv,
		Env:            r.Env,
		Console:        r.Stderr,
		SkipStorage:    !cmd.client,
		RequireProject: cmd.client,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "landingbeacon: %v\n", err)
		return ExitFailure
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			fmt.Fprintf(r.Stderr, "landingbeacon: close: %v\n", err)
		}
	}()

	return cmd.run(ctx, r, app, fs.Args()[1:])
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (r *Runner) usage(fs *flag.FlagSet) {
	fmt.Fprintln(r.Stderr, "usage: landingbeacon [-config file] [-env=false] <command> [flags]")
	fmt.Fprintln(r.Stderr)
	fmt.Fprintln(r.Stderr, "commands:")
	for _, c := range commands {
		fmt.Fprintf(r.Stderr, "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(r.Stderr)
	fmt.Fprintln(r.Stderr, "global flags:")
	fs.PrintDefaults()
}

// printJSON writes v as indented JSON on stdout.
func (r *Runner) printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.Stdout, string(data))
	return err
}

// printResult prints the envelope and maps it onto an exit code.
func printResult[T any](r *Runner, res tracker.Result[T]) int {
	if err := r.printJSON(res); err != nil {
		fmt.Fprintf(r.Stderr, "landingbeacon: encode result: %v\n", err)
		return ExitFailure
	}
	if !res.Success {
		return ExitFailure
	}
	return ExitOK
}

// metaFlag collects repeated -meta key=value pairs.
type metaFlag map[string]any

func (m metaFlag) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ",")
}

func (m metaFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("meta must be key=value, got %q", raw)
	}
	m[key] = parseMetaValue(value)
	return nil
}

// parseMetaValue keeps numbers, booleans and JSON literals typed; anything
// else is sent as a string.
func parseMetaValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	var v any
	if err := sonic.UnmarshalString(trimmed, &v); err == nil {
		return v
	}
	return raw
}

// orNil turns an empty meta collection into an absent one.
func (m metaFlag) orNil() map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func newFlagSet(r *Runner, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(r.Stderr)
	return fs
}
