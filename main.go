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

	"solarmarket/verify-api/app"
	"solarmarket/verify-api/config"
	"solarmarket/verify-api/db"
	"solarmarket/verify-api/internal"
	"solarmarket/verify-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	lvl := app.MakeLogger()

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := lvl.UnmarshalText([]byte(cfg.App.LogLevel)); err != nil {
		panic(err)
	}

	conn, err := db.New(cfg.DB)
	if err != nil {
		zap.L().Fatal("Failed to open database", zap.Error(err))
	}

	if cfg.MigrateOnly {
		zap.L().Info("Migrations applied")
		return
	}

	d := internal.NewDeps(cfg, conn, zap.L())
	defer d.Close()

	var worker *service.Worker
	if cfg.Queue.Enabled {
		worker = service.NewWorker(cfg.Queue, d.Notifier, zap.L())
		if err := worker.Start(); err != nil {
			zap.L().Fatal("Failed to start notification worker", zap.Error(err))
		}
	}

	jobs, err := service.NewJobs(cfg.Jobs, cfg.Token.Retention, conn, d.Notifications, zap.L())
	if err != nil {
		zap.L().Fatal("Failed to schedule jobs", zap.Error(err))
	}
	jobs.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Host.Port),
		Handler:           app.NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("Server starting", zap.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	zap.L().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Failed to shut down server cleanly", zap.Error(err))
	}

	jobs.Stop()
	if worker != nil {
		worker.Shutdown()
	}
}
