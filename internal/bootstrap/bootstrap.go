// Package bootstrap wires configuration, logging, observability and storage
// into the objects the CLI commands run against.
package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/landingbeacon/landingbeacon-go/internal/platform/config"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/observability"
	"github.com/landingbeacon/landingbeacon-go/pkg/identity"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
	"github.com/landingbeacon/landingbeacon-go/pkg/pagectx"
	"github.com/landingbeacon/landingbeacon-go/pkg/tracker"
)

// Options controls how the App is assembled.
type Options struct {
	ConfigPath string
	DotEnv     bool
	// Env overrides the environment lookup; nil uses the process environment.
	Env func(string) (string, bool)
	// Console receives text logs; nil means stderr.
	Console io.Writer
	// SkipStorage leaves App.Storage nil (mock-server does not need it).
	SkipStorage bool
	// RequireProject fails config:load when the project id or API key is
	// missing, before any storage is opened.
	RequireProject bool
}

// App holds the initialised dependencies.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *logging.Logger
	Storage    kvstore.Store

	opts                  Options
	observabilityShutdown observability.ShutdownFunc
}

type stepFn func(context.Context, *App) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      errors.Kind
	Execute   stepFn
}

// InitGraph lists the initialisation steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    errors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      errors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Set up observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      errors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:open",
			Title:     "Open key-value storage",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      errors.KindStorage,
			Execute:   openStorageStep,
		},
	}
}

// Init runs InitGraph. On failure everything already opened is released.
func Init(ctx context.Context, opts Options) (*App, error) {
	app := &App{opts: opts}
	if err := executeInitSteps(ctx, InitGraph(), app); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func executeInitSteps(ctx context.Context, steps []initStep, app *App) error {
	if app == nil {
		return errors.New(errors.KindBootstrap, "execute init steps", "nil app")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return errors.New(errors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return errors.New(errors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, app); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = errors.KindBootstrap
			}
			return errors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func loadConfigStep(_ context.Context, app *App) error {
	loader := config.NewLoader().WithDotEnv(app.opts.DotEnv).WithEnv(app.opts.Env)
	res, err := loader.Load(app.opts.ConfigPath)
	if err != nil {
		return err
	}
	if app.opts.RequireProject {
		if err := projectConfig(res.Config).Validate(); err != nil {
			return err
		}
	}
	app.Config = res.Config
	app.ConfigPath = res.Path
	return nil
}

func projectConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		ProjectID: cfg.Project.ID,
		APIKey:    cfg.Project.APIKey,
		APIURL:    cfg.Project.APIURL,
	}
}

func initLoggingStep(_ context.Context, app *App) error {
	logger, err := logging.New(logging.Config{
		Level:    app.Config.Log.Level,
		Dir:      app.Config.Log.Dir,
		Filename: app.Config.Log.File,
		Console:  app.opts.Console,
	})
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	app.Logger = logger

	source := app.ConfigPath
	if source == "" {
		source = "defaults"
	}
	logger.DebugTag(logging.TagCLI, "logging ready [%s] %s", app.Config.Log.Level, source)
	return nil
}

func setupObservabilityStep(ctx context.Context, app *App) error {
	shutdown, err := observability.Setup(ctx, app.Config.Observability, app.Logger.Slog())
	if err != nil {
		return errors.Wrap(errors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	app.observabilityShutdown = shutdown
	return nil
}

func openStorageStep(_ context.Context, app *App) error {
	if app.opts.SkipStorage {
		return nil
	}
	store, err := kvstore.New(app.Config.Storage, kvstore.Dependencies{})
	if err != nil {
		return err
	}
	app.Storage = store
	if store == nil {
		app.Logger.WarnTag(logging.TagKVStore, "storage disabled, device id and submission state will not persist")
	} else {
		app.Logger.DebugTag(logging.TagKVStore, "storage ready", map[string]any{"driver": app.Config.Storage.Driver})
	}
	return nil
}

// NewTracker builds a tracking client from the loaded configuration. opts
// are applied after the configured ones.
func (a *App) NewTracker(opts ...tracker.Option) (*tracker.Client, error) {
	cfg := a.Config
	ids := identity.New(a.Storage,
		identity.WithTTL(cfg.Identity.TTL),
		identity.WithPrefix(cfg.Identity.Prefix),
		identity.WithLegacyAdoption(cfg.Identity.AdoptLegacy),
		identity.WithLogger(a.Logger.Slog()),
	)

	timeout := cfg.Tracking.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	base := []tracker.Option{
		tracker.WithIdentity(ids),
		tracker.WithContextSignals(cfg.Tracking.ContextSignals),
		tracker.WithPageContext(pagectx.Static{
			ReferrerValue:  cfg.Tracking.Referrer,
			UserAgentValue: cfg.Tracking.UserAgent,
		}),
		tracker.WithHTTPClient(&http.Client{Timeout: timeout}),
		tracker.WithLogger(a.Logger.Slog()),
	}
	return tracker.New(projectConfig(cfg), append(base, opts...)...)
}

// Close releases storage, flushes observability and closes log files.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Storage != nil {
		if err := a.Storage.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		a.Storage = nil
	}
	if a.observabilityShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.observabilityShutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		a.observabilityShutdown = nil
	}
	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
