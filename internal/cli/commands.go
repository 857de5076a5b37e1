package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"github.com/landingbeacon/landingbeacon-go/internal/bootstrap"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	"github.com/landingbeacon/landingbeacon-go/pkg/tracker"
)

// withTracker builds the client, runs fn and closes the client.
func withTracker(ctx context.Context, r *Runner, app *bootstrap.App, fn func(*tracker.Client) int) int {
	client, err := app.NewTracker()
	if err != nil {
		fmt.Fprintf(r.Stderr, "landingbeacon: %v\n", err)
		return ExitFailure
	}
	defer client.Close(ctx)
	return fn(client)
}

func runDeviceID(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "device-id")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		id, persisted := c.DeviceID()
		out := map[string]any{"deviceId": nil, "persisted": persisted}
		if persisted {
			out["deviceId"] = id
		}
		if err := r.printJSON(out); err != nil {
			return ExitFailure
		}
		return ExitOK
	})
}

func runStatus(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "status")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		if err := r.printJSON(c.HasSubmittedEmail(ctx)); err != nil {
			return ExitFailure
		}
		return ExitOK
	})
}

func runSubmit(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "submit")
	email := fs.String("email", "", "address to submit")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(r.Stderr, "submit: -email is required")
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		return printResult(r, c.SubmitEmail(ctx, tracker.SubmitEmailOptions{Email: *email}))
	})
}

func runTrack(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "track")
	eventType := fs.String("type", "", "event type: VIEW, CTA, SUBMIT or NAVIGATE")
	content := fs.String("content", "", "content variant id")
	meta := metaFlag{}
	fs.Var(meta, "meta", "metadata key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if *eventType == "" {
		fmt.Fprintln(r.Stderr, "track: -type is required")
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		return printResult(r, c.TrackEvent(ctx, tracker.TrackEventOptions{
			Type:      tracker.EventType(strings.ToUpper(*eventType)),
			ContentID: *content,
			Meta:      meta.orNil(),
		}))
	})
}

func runPageView(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "pageview")
	content := fs.String("content", "", "content variant id")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		return printResult(r, c.TrackPageView(ctx, *content))
	})
}

func runCTA(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "cta")
	section := fs.String("section", "", "page section the CTA belongs to")
	content := fs.String("content", "", "content variant id")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		return printResult(r, c.TrackCTA(ctx, *section, *content))
	})
}

func runNavigate(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "navigate")
	content := fs.String("content", "", "content variant id")
	meta := metaFlag{}
	fs.Var(meta, "meta", "metadata key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		return printResult(r, c.TrackNavigate(ctx, meta.orNil(), *content))
	})
}

// replayLine is one line of a replay file.
type replayLine struct {
	Type      string         `json:"type"`
	ContentID string         `json:"contentId"`
	Meta      map[string]any `json:"meta"`
}

// ReplaySummary is printed after a replay.
type ReplaySummary struct {
	Sent   int64    `json:"sent"`
	Failed int64    `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

func readReplayFile(path string) ([]replayLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []replayLine
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var line replayLine
		if err := sonic.UnmarshalString(text, &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func runReplay(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "replay")
	file := fs.String("file", "", "JSON lines file with {type, contentId, meta} objects")
	concurrency := fs.Int("concurrency", 4, "number of requests in flight")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if *file == "" {
		fmt.Fprintln(r.Stderr, "replay: -file is required")
		return ExitUsage
	}
	if *concurrency < 1 {
		*concurrency = 1
	}

	lines, err := readReplayFile(*file)
	if err != nil {
		fmt.Fprintf(r.Stderr, "replay: %v\n", err)
		return ExitFailure
	}

	return withTracker(ctx, r, app, func(c *tracker.Client) int {
		var sent, failed atomic.Int64
		errs := make([]string, len(lines))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(*concurrency)
		for i, line := range lines {
			i, line := i, line
			g.Go(func() error {
				res := c.TrackEvent(gctx, tracker.TrackEventOptions{
					Type:      tracker.EventType(strings.ToUpper(line.Type)),
					ContentID: line.ContentID,
					Meta:      line.Meta,
				})
				if res.Success {
					sent.Add(1)
					return nil
				}
				failed.Add(1)
				errs[i] = fmt.Sprintf("event %d (%s): %s", i+1, line.Type, res.Error)
				return nil
			})
		}
		_ = g.Wait()

		summary := ReplaySummary{Sent: sent.Load(), Failed: failed.Load()}
		for _, e := range errs {
			if e != "" {
				summary.Errors = append(summary.Errors, e)
			}
		}
		app.Logger.InfoTag(logging.TagCLI, "replay finished", map[string]any{"sent": summary.Sent, "failed": summary.Failed})
		if err := r.printJSON(summary); err != nil {
			return ExitFailure
		}
		if summary.Failed > 0 {
			return ExitFailure
		}
		return ExitOK
	})
}

func runMockServer(ctx context.Context, r *Runner, app *bootstrap.App, args []string) int {
	fs := newFlagSet(r, "mock-server")
	addr := fs.String("addr", app.Config.MockServer.Addr, "listen address")
	static := fs.String("static", app.Config.MockServer.StaticDir, "directory served at / for landing page previews")
	db := fs.String("db", app.Config.MockServer.Database, "sqlite DSN for received records; empty keeps them in memory")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	app.Config.MockServer.Addr = *addr
	app.Config.MockServer.StaticDir = *static
	app.Config.MockServer.Database = *db

	if err := app.RunMockServer(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "mock-server: %v\n", err)
		return ExitFailure
	}
	return ExitOK
}
