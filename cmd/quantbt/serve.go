package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/quantbt/internal/api"
	"github.com/newthinker/quantbt/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quantbt API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	rt.log.Info("starting quantbt server",
		zap.String("host", rt.cfg.Server.Host),
		zap.Int("port", rt.cfg.Server.Port),
	)

	var registry *metrics.Registry
	if rt.cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
	}

	server, err := api.NewServer(api.Config{
		Host:        rt.cfg.Server.Host,
		Port:        rt.cfg.Server.Port,
		APIKey:      rt.cfg.Server.APIKey,
		JobTTL:      time.Duration(rt.cfg.Server.JobTTLHours) * time.Hour,
		MaxJobs:     rt.cfg.Server.MaxJobs,
		MetricsPath: rt.cfg.Metrics.Path,
		Workers:     rt.cfg.Engine.Workers,
	}, rt.engine, rt.feed, rt.results, registry, rt.log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			rt.log.Error("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rt.log.Info("shutting down quantbt server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
