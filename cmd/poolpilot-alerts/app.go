package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poolpilot/alerts/internal/config"
	dbpkg "github.com/poolpilot/alerts/internal/db"
	"github.com/poolpilot/alerts/internal/poolpilot/channel"
	"github.com/poolpilot/alerts/internal/poolpilot/compose"
	"github.com/poolpilot/alerts/internal/poolpilot/service"
	"github.com/poolpilot/alerts/internal/poolpilot/store"
	"github.com/poolpilot/alerts/internal/poolpilot/store/memory"
	"github.com/poolpilot/alerts/internal/poolpilot/store/sqlstore"
	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

// app holds everything one process needs to run dispatches.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	db     *sql.DB // nil for the memory driver
	writer *dbpkg.Worker

	alerts     store.AlertStore
	runLog     store.RunLogStore
	dispatcher *service.Dispatcher
}

func loadConfig(purpose config.Purpose) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(purpose); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(env string) (*zap.Logger, error) {
	var logConfig zap.Config
	if env == "prod" {
		logConfig = zap.NewProductionConfig()
		logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		logConfig = zap.NewDevelopmentConfig()
	}
	return logConfig.Build()
}

func dbConfig(cfg config.Config) (dbpkg.Config, error) {
	dialect, err := dbpkg.ParseDialect(cfg.DB.Driver)
	if err != nil {
		return dbpkg.Config{}, err
	}
	return dbpkg.Config{
		Dialect: dialect,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.DSN,
		Env:     cfg.Env,
	}, nil
}

func isMemoryDriver(cfg config.Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.DB.Driver), "memory")
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...service.Option) (*app, error) {
	mode, err := types.ParseKeyMode(cfg.DB.KeyMode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if isMemoryDriver(cfg) {
		logger.Warn("using in-memory store; alerts and run history are lost on exit")
		a.alerts = memory.NewAlertStore(mode)
		a.runLog = memory.NewRunLogStore()
	} else {
		dc, err := dbConfig(cfg)
		if err != nil {
			return nil, err
		}
		db, err := dbpkg.Open(ctx, dc)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.writer = dbpkg.NewWorker(db)
		a.alerts = sqlstore.NewAlertStore(db, a.writer, dc.Dialect, mode)
		a.runLog = sqlstore.NewRunLogStore(db, a.writer, dc.Dialect)

		if cfg.Env == "dev" && cfg.DB.SeedDev {
			if err := dbpkg.SeedDev(ctx, db, dc.Dialect, dbpkg.SeedDevOptions{
				Phone: cfg.DB.SeedPhone,
			}); err != nil {
				a.Close()
				return nil, fmt.Errorf("seed dev data: %w", err)
			}
			logger.Info("seeded dev alerts")
		}
	}

	ch, err := buildChannel(logger, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts = append([]service.Option{
		service.WithRunLog(a.runLog),
		service.WithComposer(compose.New(cfg.Notify.MessageTitle)),
	}, opts...)
	a.dispatcher = service.NewDispatcher(a.alerts, ch, policyFrom(cfg), cfg.Notify.Token, logger, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.writer != nil {
		a.writer.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func policyFrom(cfg config.Config) service.Policy {
	n := cfg.Notify
	return service.Policy{
		DeliveryEnabled:         cfg.DeliveryEnabled(),
		AcceptedClassifications: cfg.Classifications(),
		DefaultMaxAge:           time.Duration(n.MaxAgeMinutes) * time.Minute,
		OverrideDestination:     n.OverrideDestination,
		AckInDryRun:             n.AckInDryRun,
		ClaimMode:               n.ClaimMode,
		ClaimTTL:                time.Duration(n.ClaimTTLMinutes) * time.Minute,
		DeliveryConcurrency:     n.DeliveryConcurrency,
		StoreTimeout:            time.Duration(n.StoreTimeoutSeconds) * time.Second,
		SendTimeout:             time.Duration(n.SendTimeoutSeconds) * time.Second,
	}
}

// buildChannel returns nil when no transport is enabled.
func buildChannel(logger *zap.Logger, cfg config.Config) (channel.Channel, error) {
	if !cfg.DeliveryEnabled() {
		return nil, nil
	}

	var r channel.Router
	if cfg.SMS.Enabled {
		tw, err := channel.NewTwilio(logger, channel.TwilioConfig{
			AccountSID:  cfg.SMS.AccountSID,
			AuthToken:   cfg.SMS.AuthToken,
			From:        cfg.SMS.From,
			BaseURL:     cfg.SMS.BaseURL,
			Timeout:     time.Duration(cfg.Notify.SendTimeoutSeconds) * time.Second,
			CountryCode: cfg.SMS.CountryCode,
		})
		if err != nil {
			return nil, err
		}
		r.Phone = channel.NewInstrumented(channel.NewRateLimited(tw, cfg.SMS.RatePerSecond, cfg.SMS.Burst))
	}
	if cfg.Email.Enabled {
		sm, err := channel.NewSMTP(logger, channel.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			Subject:  cfg.Email.Subject,
			NoVerify: cfg.Email.NoVerify,
		})
		if err != nil {
			return nil, err
		}
		r.Email = channel.NewInstrumented(sm)
	}
	return r, nil
}
