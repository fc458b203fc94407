package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spigell/cv-evaluator/internal/api"
	"github.com/spigell/cv-evaluator/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the evaluation workers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (overrides http.listen)")
	viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.withPipeline(ctx); err != nil {
		return err
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.Config{
		AppName:        a.config.AppName,
		Version:        version,
		Admitter:       a.admitter,
		Status:         a.status,
		Uploads:        a.documents,
		Health:         a.health,
		Metrics:        metrics.Handler(a.registry),
		MaxUploadBytes: a.config.HTTP.MaxUploadBytes,
		Logger:         a.logger,
	})

	srv := &http.Server{
		Addr:              a.config.HTTP.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grace := a.config.HTTP.ShutdownTimeout
	serveErr := api.Serve(ctx, srv, grace, a.logger)
	if serveErr != nil {
		a.logger.Error("http server stopped", zap.Error(serveErr))
	}

	a.logger.Info("draining evaluation queue", zap.Int("pending", a.pool.Pending()))
	if err := a.drain(ctx, grace); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("queue did not drain in time; in-flight jobs were canceled")
		}
		return errors.Join(serveErr, err)
	}

	return serveErr
}
