package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/assessrec/assessrec/internal/catalog"
	"github.com/assessrec/assessrec/internal/httpapi"
	"github.com/assessrec/assessrec/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address, e.g. :8080")

	viper.BindPFlag("serve.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	eng, err := buildEngine(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the engine", zap.Error(err))
	}

	logger.Info("starting the assessrec server",
		zap.String("version", version),
		zap.String("listen", config.Serve.Listen),
		zap.String("catalog", config.CatalogFile),
	)

	// Pay the catalog embedding cost before taking traffic. A transient
	// failure is not fatal: the first request retries the load. A malformed
	// catalog never is retried, so the server must not start on one.
	if err := eng.Bootstrap(ctx); err != nil {
		if bootstrapIsFatal(err) {
			logger.Fatal("catalog is malformed, refusing to start", zap.Error(err))
		}
		logger.Warn("catalog bootstrap failed, will retry on first request", zap.Error(err))
	} else {
		logger.Info("catalog ready", zap.Int("records", eng.CatalogSize()))
	}

	srv := &http.Server{
		Addr:              config.Serve.Listen,
		Handler:           httpapi.NewServer(eng, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("shutdown", zap.Error(err))
	}
}

// bootstrapIsFatal reports whether a bootstrap error is sticky in the engine
// and therefore can never succeed on a request-time retry.
func bootstrapIsFatal(err error) bool {
	var malformed *catalog.MalformedCatalogError
	return errors.As(err, &malformed)
}
