package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/audit"
	"github.com/cleanidoc/cleandoc/pkg/events"
	"github.com/cleanidoc/cleandoc/pkg/export"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/objectstore"
	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultDaily runs the daily export at 02:00
	DefaultDaily = "0 0 2 * * *"
	// DefaultWeekly runs retention cleanup on Sundays at 03:00
	DefaultWeekly = "0 0 3 * * 0"

	jobDaily     = "daily_export"
	jobRetention = "retention_cleanup"
)

// Exporter runs one tenant export
type Exporter interface {
	GenerateDailyExport(ctx context.Context, tenantID, reportDate string, opts export.Options) (*export.Result, error)
}

// Cleaner deletes expired artifacts of a tenant
type Cleaner interface {
	CleanupExpired(ctx context.Context, tenantID string, retentionDays int) (*objectstore.CleanupResult, error)
}

// Store is what the scheduler reads
type Store interface {
	ListTenants(ctx context.Context) ([]*types.TenantExportSettings, error)
	FindExport(ctx context.Context, tenantID, reportDate string) (*types.ExportRecord, error)
}

// Config holds the cron expressions and pacing
type Config struct {
	Daily    string
	Weekly   string
	Location *time.Location
	// TenantDelay is slept between two tenants of the daily run
	TenantDelay time.Duration
}

// Deps are the services the jobs drive
type Deps struct {
	Store    Store
	Exporter Exporter
	Cleaner  Cleaner
	Audit    *audit.Service
	Events   *events.Broker
}

// DailySummary reports one daily run
type DailySummary struct {
	ReportDate string            `json:"report_date"`
	Exported   []string          `json:"exported"`
	Skipped    []string          `json:"skipped"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// RetentionSummary reports one retention sweep
type RetentionSummary struct {
	Tenants []*objectstore.CleanupResult `json:"tenants"`
	Deleted int                          `json:"deleted"`
	Failed  map[string]string            `json:"failed,omitempty"`
}

// Scheduler triggers the daily export and the weekly retention sweep
type Scheduler struct {
	cfg    Config
	deps   Deps
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler validates the cron expressions and registers both jobs.
// Nothing runs until Start.
func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Daily == "" {
		cfg.Daily = DefaultDaily
	}
	if cfg.Weekly == "" {
		cfg.Weekly = DefaultWeekly
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Store == nil || deps.Exporter == nil || deps.Cleaner == nil {
		return nil, fmt.Errorf("scheduler requires a store, an exporter and a cleaner")
	}

	s := &Scheduler{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		sleep:  sleepContext,
		logger: log.WithComponent("scheduler"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s.jobs = make(map[string]cron.EntryID, 2)
	daily, err := s.cron.AddFunc(cfg.Daily, s.dailyJob)
	if err != nil {
		return nil, fmt.Errorf("invalid daily schedule %q: %w", cfg.Daily, err)
	}
	s.jobs[jobDaily] = daily
	weekly, err := s.cron.AddFunc(cfg.Weekly, s.retentionJob)
	if err != nil {
		return nil, fmt.Errorf("invalid weekly schedule %q: %w", cfg.Weekly, err)
	}
	s.jobs[jobRetention] = weekly
	return s, nil
}

// WithClock replaces the time source
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("daily", s.cfg.Daily).
		Str("weekly", s.cfg.Weekly).
		Str("timezone", s.cfg.Location.String()).
		Msg("Scheduler started")
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// NextRuns returns the next fire time of each job. Times are zero until
// the scheduler is started.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(s.jobs))
	for name, id := range s.jobs {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) dailyJob() {
	if _, err := s.RunDaily(s.jobContext(), ""); err != nil {
		s.logger.Error().Err(err).Msg("Daily export run failed")
	}
}

func (s *Scheduler) retentionJob() {
	if _, err := s.RunRetention(s.jobContext()); err != nil {
		s.logger.Error().Err(err).Msg("Retention run failed")
	}
}

// Yesterday returns the calendar day before now in loc
func Yesterday(now time.Time, loc *time.Location) string {
	return now.In(loc).AddDate(0, 0, -1).Format(types.DateLayout)
}

// RunDaily exports every enabled tenant for reportDate, yesterday in the
// scheduler's location when empty. Tenants are processed one at a time.
// A tenant that already has a record for the date is skipped unless that
// record FAILED. Per-tenant errors are audited and the run continues.
func (s *Scheduler) RunDaily(ctx context.Context, reportDate string) (*DailySummary, error) {
	if reportDate == "" {
		reportDate = Yesterday(s.now(), s.cfg.Location)
	}
	metrics.SchedulerRunsTotal.WithLabelValues(jobDaily).Inc()

	tenants, err := s.deps.Store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	sum := &DailySummary{ReportDate: reportDate}
	logger := s.logger.With().Str("report_date", reportDate).Logger()
	logger.Info().Int("tenants", len(tenants)).Msg("Daily export run started")

	first := true
	for _, tenant := range tenants {
		if !tenant.Enabled {
			continue
		}
		if !first && s.cfg.TenantDelay > 0 {
			if err := s.sleep(ctx, s.cfg.TenantDelay); err != nil {
				return sum, err
			}
		}
		first = false

		tlog := log.WithTenant(logger, tenant.TenantID)

		existing, err := s.deps.Store.FindExport(ctx, tenant.TenantID, reportDate)
		switch {
		case err == nil && existing.Status != types.ExportStatusFailed:
			s.skip(sum, tenant.TenantID, reportDate, fmt.Sprintf("export %s is %s", existing.ID, existing.Status))
			tlog.Debug().Str("export_id", existing.ID).Msg("Export exists, skipping")
			continue
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			s.failTenant(ctx, sum, tenant.TenantID, reportDate, fmt.Errorf("check existing export: %w", err))
			continue
		}

		res, err := s.deps.Exporter.GenerateDailyExport(ctx, tenant.TenantID, reportDate, export.Options{})
		if errors.Is(err, export.ErrExportInProgress) {
			s.skip(sum, tenant.TenantID, reportDate, "export in progress")
			continue
		}
		if err != nil {
			s.failTenant(ctx, sum, tenant.TenantID, reportDate, err)
			continue
		}

		sum.Exported = append(sum.Exported, tenant.TenantID)
		metrics.SchedulerTenantsTotal.WithLabelValues("exported").Inc()
		tlog.Info().Str("export_id", res.ExportID).Msg("Scheduled export completed")
	}

	logger.Info().
		Int("exported", len(sum.Exported)).
		Int("skipped", len(sum.Skipped)).
		Int("failed", len(sum.Failed)).
		Msg("Daily export run finished")
	return sum, nil
}

func (s *Scheduler) skip(sum *DailySummary, tenantID, reportDate, reason string) {
	sum.Skipped = append(sum.Skipped, tenantID)
	metrics.SchedulerTenantsTotal.WithLabelValues("skipped").Inc()
	s.deps.Events.Publish(&events.Event{
		Type:       events.EventScheduleSkipped,
		TenantID:   tenantID,
		ReportDate: reportDate,
		Message:    reason,
	})
}

func (s *Scheduler) failTenant(ctx context.Context, sum *DailySummary, tenantID, reportDate string, err error) {
	if sum.Failed == nil {
		sum.Failed = make(map[string]string)
	}
	sum.Failed[tenantID] = err.Error()
	metrics.SchedulerTenantsTotal.WithLabelValues("failed").Inc()

	s.deps.Audit.Record(ctx, audit.Entry{
		Action:       audit.ActionScheduledExportFailed,
		ResourceType: audit.ResourceTenant,
		ResourceID:   tenantID,
		NewValues: map[string]string{
			"report_date": reportDate,
			"error":       err.Error(),
		},
		Status: audit.StatusFailure,
	})
	s.logger.Error().Err(err).
		Str("tenant_id", tenantID).
		Str("report_date", reportDate).
		Msg("Scheduled export failed")
}

// RunRetention deletes expired artifacts of every tenant using the
// tenant's retention. Disabled tenants are swept too.
func (s *Scheduler) RunRetention(ctx context.Context) (*RetentionSummary, error) {
	metrics.SchedulerRunsTotal.WithLabelValues(jobRetention).Inc()

	tenants, err := s.deps.Store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	sum := &RetentionSummary{}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		days := tenant.Retention()
		res, err := s.deps.Cleaner.CleanupExpired(ctx, tenant.TenantID, days)
		status := audit.StatusSuccess
		values := map[string]any{"retention_days": days}
		if err != nil {
			if sum.Failed == nil {
				sum.Failed = make(map[string]string)
			}
			sum.Failed[tenant.TenantID] = err.Error()
			status = audit.StatusFailure
			values["error"] = err.Error()
			s.logger.Error().Err(err).Str("tenant_id", tenant.TenantID).Msg("Retention cleanup failed")
		} else {
			sum.Tenants = append(sum.Tenants, res)
			sum.Deleted += res.DeletedCount
			values["scanned"] = res.Scanned
			values["deleted_count"] = res.DeletedCount
			values["failed"] = len(res.Failed)
			values["cutoff"] = res.Cutoff
		}

		s.deps.Audit.Record(ctx, audit.Entry{
			Action:       audit.ActionRetentionCleanup,
			ResourceType: audit.ResourceTenant,
			ResourceID:   tenant.TenantID,
			ResourceName: tenant.Name,
			NewValues:    values,
			Status:       status,
		})
	}

	s.deps.Events.Publish(&events.Event{
		Type:     events.EventRetentionSwept,
		Message:  fmt.Sprintf("%d objects deleted", sum.Deleted),
		Metadata: map[string]string{"tenants": fmt.Sprint(len(tenants))},
	})
	return sum, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
