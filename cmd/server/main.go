// Command server 运行定时附件清理任务，并提供 HTTP 控制与监控接口。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"attachpurge/backend/internal/app"
	"attachpurge/backend/internal/config"
	"attachpurge/backend/internal/health"
	"attachpurge/backend/internal/logger"
	"attachpurge/backend/internal/scheduler"
	httptransport "attachpurge/backend/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	var schedule string
	if cfg.Schedule.Enabled {
		schedule = cfg.Schedule.Cron
	}
	job := scheduler.NewJob(a.Purge, schedule, a.Locker, log)
	srv := newHTTPServer(cfg, a, job, log)

	log.Info("attachpurge server starting",
		zap.String("address", srv.Addr),
		zap.String("database", cfg.Database.Type),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("schedule", schedule),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := job.Start(gctx); err != nil {
			return err
		}
		if cfg.Schedule.RunOnStart {
			if err := job.Trigger(); err != nil {
				log.Warn("initial purge run skipped", zap.Error(err))
			}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		// 进行中的运行会被取消，已提交的批次保留
		job.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newHTTPServer(cfg *config.Config, a *app.App, job *scheduler.Job, log *zap.Logger) *http.Server {
	deps := httptransport.RouterDependencies{
		Purge:    job,
		Policies: a.Policies,
		Metrics:  a.Metrics,
		Logger:   log,
	}

	checker := health.New(log)
	checker.AddReadiness("store", health.StoreCheck(a.Store))
	if a.Redis != nil {
		checker.AddReadiness("redis", health.PingCheck(a.Redis, 3*time.Second))
	}
	if a.Blobs != nil {
		checker.AddReadiness("blobs", health.DirCheck(a.Blobs.BasePath()))
		deps.Blobs = a.Blobs
	}
	deps.Health = checker

	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httptransport.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
