// Command serve exposes the trained heart disease pipeline over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/YuminosukeSato/heartml/config"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
	"github.com/YuminosukeSato/heartml/serving"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.GetLogger().Error("Invalid configuration", err)
		os.Exit(1)
	}
	log.Setup(cfg.LoggerOptions())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := serve(cfg); err != nil {
		log.GetLogger().Error("Server stopped", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	logger := log.GetLoggerWithName("serve")

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		logger.Warn("Failed to set GOMAXPROCS", "error", err.Error())
	}

	svc := serving.NewService(cfg.ModelPath, serving.WithLogger(log.GetLoggerWithName("serving")))
	preload(svc, logger)

	server := &http.Server{
		Addr:              cfg.ServeAddr,
		Handler:           serving.NewRouter(svc, log.GetLoggerWithName("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.ServeAddr, log.ModelPathKey, cfg.ModelPath)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	}
}

// preload reads the artifact once before the listener starts. A failure is
// logged and the server still starts; requests retry the load.
func preload(svc *serving.Service, logger log.Logger) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := svc.Load(ctx)
	if err != nil {
		logger.Error("Model not loaded at startup", err, log.ModelPathKey, svc.ModelPath())
		return false
	}
	logger.Info("Model loaded at startup",
		log.ModelPathKey, svc.ModelPath(),
		log.RunIDKey, p.RunID,
	)
	return true
}
