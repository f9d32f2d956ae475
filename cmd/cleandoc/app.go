package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/audit"
	"github.com/cleanidoc/cleandoc/pkg/config"
	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/cleanidoc/cleandoc/pkg/delivery"
	"github.com/cleanidoc/cleandoc/pkg/events"
	"github.com/cleanidoc/cleandoc/pkg/export"
	"github.com/cleanidoc/cleandoc/pkg/health"
	"github.com/cleanidoc/cleandoc/pkg/lock"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/objectstore"
	"github.com/cleanidoc/cleandoc/pkg/scheduler"
	"github.com/cleanidoc/cleandoc/pkg/security"
	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds every service of a running pipeline
type app struct {
	cfg        config.Config
	store      storage.Store
	locker     lock.Locker
	objects    *objectstore.Gateway
	downloads  *objectstore.LocalBackend
	audit      *audit.Service
	dispatcher *delivery.Dispatcher
	events     *events.Broker
	exporter   *export.Orchestrator
	scheduler  *scheduler.Scheduler
	monitor    *health.Monitor

	closers []func() error
	logger  zerolog.Logger
}

// newApp opens the store, lock, object storage and delivery clients
// described by cfg and wires the orchestrator and scheduler on top
func newApp(ctx context.Context, cfg config.Config) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		events:  events.NewBroker(),
		monitor: health.NewMonitor(health.DefaultConfig()),
		logger:  log.WithComponent("cleandoc"),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openLocker(ctx); err != nil {
		return nil, err
	}
	if err := a.openObjects(ctx); err != nil {
		return nil, err
	}

	a.audit = audit.NewService(a.store)

	dispatcher, err := a.newDispatcher()
	if err != nil {
		return nil, err
	}
	a.dispatcher = dispatcher

	var renderer content.PDFRenderer
	if cfg.PDF.Enabled {
		renderer = content.NewChromeRenderer(cfg.PDF.ChromiumPath, cfg.PDF.Timeout)
	}

	reportLoc, err := time.LoadLocation(cfg.PDF.Timezone)
	if err != nil {
		a.logger.Warn().Err(err).Str("timezone", cfg.PDF.Timezone).Msg("Unknown report timezone, using UTC")
		reportLoc = time.UTC
	}

	a.exporter = export.NewOrchestrator(export.Config{
		Location:             reportLoc,
		DefaultRetentionDays: cfg.Export.DefaultRetentionDays,
		LinkTTL:              cfg.ObjectStore.LinkTTL,
	}, export.Deps{
		Store:      a.store,
		Objects:    a.objects,
		Locker:     a.locker,
		Audit:      a.audit,
		Dispatcher: a.dispatcher,
		Renderer:   renderer,
		Events:     a.events,
	})

	sched, err := scheduler.NewScheduler(scheduler.Config{
		Daily:       cfg.Scheduler.Daily,
		Weekly:      cfg.Scheduler.Weekly,
		Location:    cfg.Location(),
		TenantDelay: cfg.Scheduler.TenantDelay,
	}, scheduler.Deps{
		Store:    a.store,
		Exporter: a.exporter,
		Cleaner:  a.objects,
		Audit:    a.audit,
		Events:   a.events,
	})
	if err != nil {
		return nil, err
	}
	a.scheduler = sched

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		pg, err := storage.NewPostgresStore(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		a.store = pg
	default:
		bolt, err := storage.NewBoltStore(a.cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open bolt store: %w", err)
		}
		a.store = bolt
	}
	a.closers = append(a.closers, a.store.Close)
	a.monitor.Add("store", health.NewPingChecker(a.store.Ping))
	return nil
}

func (a *app) openLocker(ctx context.Context) error {
	if a.cfg.Lock.Driver != "redis" {
		a.locker = lock.NewLocalLocker()
		return nil
	}

	client, err := lock.OpenRedis(ctx, lock.RedisConfig{Addr: a.cfg.Lock.RedisAddr})
	if err != nil {
		return err
	}
	locker := lock.NewRedisLocker(client, a.cfg.Lock.TTL)
	a.locker = locker
	a.closers = append(a.closers, locker.Close)
	a.monitor.Add("lock", health.NewPingChecker(locker.Ping))
	// exports cannot start without the shared lock
	metrics.SetCriticalComponents("store", "objectstore", "lock")
	return nil
}

func (a *app) openObjects(ctx context.Context) error {
	var backend objectstore.Backend
	switch a.cfg.ObjectStore.Driver {
	case "s3":
		s3cfg := a.cfg.ObjectStore.S3
		s3, err := objectstore.NewS3Backend(ctx, objectstore.S3Config{
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			Bucket:    s3cfg.Bucket,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			UseSSL:    s3cfg.UseSSL,
		})
		if err != nil {
			return err
		}
		backend = s3
	default:
		cipher, err := security.NewCipherFromPassphrase(a.cfg.ObjectStore.EncryptionKey)
		if err != nil {
			return err
		}
		local, err := objectstore.NewLocalBackend(a.cfg.ObjectStore.LocalDir, cipher,
			a.cfg.ObjectStore.SigningKey, a.cfg.Server.PublicURL)
		if err != nil {
			return err
		}
		a.downloads = local
		backend = local
	}

	a.objects = objectstore.NewGateway(backend, a.cfg.Export.KeyPrefix, a.cfg.ObjectStore.LinkTTL)
	a.monitor.Add("objectstore", health.NewPingChecker(a.objects.Ping))
	return nil
}

func (a *app) newDispatcher() (*delivery.Dispatcher, error) {
	cfg := a.cfg
	var mailer delivery.Mailer
	if cfg.SMTP.Host != "" {
		m, err := delivery.NewSMTPMailer(delivery.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			return nil, err
		}
		mailer = m
		addr := net.JoinHostPort(cfg.SMTP.Host, strconv.Itoa(cfg.SMTP.Port))
		// implicit TLS relays do not greet in clear text
		if cfg.SMTP.Port == 465 {
			a.monitor.Add("smtp", health.NewTCPChecker(addr))
		} else {
			a.monitor.Add("smtp", health.NewSMTPChecker(addr))
		}
	} else {
		a.logger.Warn().Msg("SMTP is not configured, email delivery disabled")
	}

	return delivery.NewDispatcher(delivery.Config{
		Retry: delivery.RetryPolicy{
			MaxAttempts: cfg.Delivery.MaxAttempts,
			BaseDelay:   cfg.Delivery.InitialDelay,
		},
		EmailTimeout:   cfg.SMTP.Timeout,
		SFTPTimeout:    cfg.Delivery.SFTPTimeout,
		WebhookTimeout: cfg.Delivery.WebhookTimeout,
	}, mailer, delivery.NewSFTPUploader(), delivery.NewWebhookClient(nil)), nil
}

// Close releases everything opened by newApp, last opened first
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp loads the config, builds the app, runs fn and closes the app
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("Failed to close resources")
		}
	}()
	return fn(ctx, a)
}
