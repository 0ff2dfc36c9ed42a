package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/poolpilot/alerts/internal/config"
	"github.com/poolpilot/alerts/internal/grpcapi"
	"github.com/poolpilot/alerts/internal/httpapi"
	"github.com/poolpilot/alerts/internal/poolpilot/service"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger endpoint and run scheduled dispatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.PurposeServe)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Env)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		grpcSrv *grpcapi.Server
		opts    []service.Option
	)
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcapi.NewServer(logger)
		opts = append(opts, service.WithAfterRun(grpcSrv.ObserveRun))
	}

	a, err := newApp(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("starting poolpilot-alerts",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.Bool("delivery_enabled", cfg.DeliveryEnabled()),
		zap.Bool("claim_mode", cfg.Notify.ClaimMode),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Everything that can fail is set up before the HTTP server starts, so
	// an early return never leaves it running.
	var sched *service.Scheduler
	if cfg.Schedule.Active() {
		sched, err = service.NewScheduler(a.dispatcher, service.ScheduleConfig{
			Cron:       cfg.Schedule.Cron,
			Interval:   time.Duration(cfg.Schedule.IntervalSeconds) * time.Second,
			RunOnStart: cfg.Schedule.RunOnStart,
		}, clock.New(), logger)
		if err != nil {
			return err
		}
	}

	var grpcLis net.Listener
	if grpcSrv != nil {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Dispatcher: a.dispatcher,
		RunLog:     a.runLog,
		CheckToken: a.dispatcher.Authorized,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	if grpcSrv != nil {
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
				cancel()
			}
		}()
	}

	if sched != nil {
		sched.Start(ctx)
	}

	pruner := service.NewRunLogPruner(a.runLog, service.PrunerConfig{
		RetentionDays: cfg.RunLog.RetentionDays,
		IntervalHours: cfg.RunLog.PruneIntervalHours,
	}, clock.New(), logger)
	pruner.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if sched != nil {
		sched.Stop()
	}
	pruner.Stop()
	if grpcSrv != nil {
		grpcSrv.Stop(shutdownCtx)
	}
	return nil
}
