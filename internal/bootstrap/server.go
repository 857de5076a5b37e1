package bootstrap

import (
	"context"
	stderrors "errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/landingbeacon/landingbeacon-go/internal/collector"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/errors"
	"github.com/landingbeacon/landingbeacon-go/internal/platform/logging"
	httptransport "github.com/landingbeacon/landingbeacon-go/internal/transport/http"
	"github.com/landingbeacon/landingbeacon-go/pkg/kvstore"
)

// NewMockHandler assembles the local collection API described by
// Config.MockServer.
func (a *App) NewMockHandler() (http.Handler, *collector.Service, error) {
	cfg := a.Config.MockServer

	repo := collector.NewMemoryRepository()
	if cfg.Database != "" {
		db, err := kvstore.OpenGorm(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if repo, err = collector.NewGormRepository(db); err != nil {
			return nil, nil, err
		}
	}
	svc := collector.NewService(repo, collector.WithLogger(a.Logger))

	router := httptransport.BuildRouter(httptransport.RouterOptions{
		Logger:       a.Logger,
		Debug:        strings.EqualFold(a.Config.Log.Level, "debug"),
		AllowOrigins: cfg.AllowOrigins,
		StaticRoot:   cfg.StaticDir,
	})
	router.Engine.NoRoute(func(c *gin.Context) {
		httptransport.RespondError(c, http.StatusNotFound, "not found")
	})
	httptransport.NewCollectorHandler(svc, cfg.APIKeys).RegisterRoutes(router)
	return router.Engine, svc, nil
}

// RunMockServer serves the local collection API until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func (a *App) RunMockServer(ctx context.Context) error {
	handler, _, err := a.NewMockHandler()
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              a.Config.MockServer.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		a.Logger.InfoTag(logging.TagHTTP, "mock collection API listening on http://%s", a.Config.MockServer.Addr)
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(errors.KindTransport, "mock-server", "listen", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(errors.KindTransport, "mock-server", "shutdown", err)
		}
		a.Logger.InfoTag(logging.TagHTTP, "mock collection API stopped")
		return nil
	})
	return g.Wait()
}
