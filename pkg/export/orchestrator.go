package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/archive"
	"github.com/cleanidoc/cleandoc/pkg/audit"
	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/cleanidoc/cleandoc/pkg/delivery"
	"github.com/cleanidoc/cleandoc/pkg/events"
	"github.com/cleanidoc/cleandoc/pkg/lock"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/manifest"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/objectstore"
	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence the orchestrator needs
type Store interface {
	storage.ExportStore
	storage.TenantStore
	storage.ActivityStore
}

// Options tune a single run. Nil flags fall back to tenant settings.
type Options struct {
	IncludePDF       *bool
	IncludeCSV       *bool
	DeliveryChannels []delivery.Channel
	SkipDelivery     bool
}

// Result summarizes a completed run
type Result struct {
	ExportID         string                        `json:"export_id"`
	Status           types.ExportStatus            `json:"status"`
	DownloadURLs     map[types.ArtifactKind]string `json:"download_urls"`
	LinksExpireAt    time.Time                     `json:"links_expire_at"`
	Stats            types.ExportStats             `json:"stats"`
	ProcessingTimeMs int64                         `json:"processing_time_ms"`
	Delivery         *delivery.Result              `json:"delivery,omitempty"`
}

// Config holds orchestrator settings
type Config struct {
	// Location is used for times printed in the PDF report
	Location             *time.Location
	DefaultRetentionDays int
	// LinkTTL is the lifetime of the download links minted per run
	LinkTTL time.Duration
}

// Deps are the services an orchestrator drives
type Deps struct {
	Store      Store
	Objects    *objectstore.Gateway
	Locker     lock.Locker
	Audit      *audit.Service
	Dispatcher *delivery.Dispatcher
	// Renderer is nil when PDF output is disabled
	Renderer content.PDFRenderer
	Events   *events.Broker
}

// Orchestrator runs the daily export of one tenant and date
type Orchestrator struct {
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultRetentionDays <= 0 {
		cfg.DefaultRetentionDays = types.DefaultRetentionDays
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		now:    time.Now,
		logger: log.WithComponent("export"),
	}
}

// WithClock replaces the time source
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// run carries the state of one execution
type run struct {
	rec     *types.ExportRecord
	tenant  *types.TenantExportSettings
	records []types.ActivityRecord
	started time.Time
	timer   *metrics.Timer
	logger  zerolog.Logger

	csv      *content.CSVSet
	pdf      *content.Document
	manifest *manifest.Result
	archive  *archive.Archive
	uploads  []upload
}

type upload struct {
	kind        types.ArtifactKind
	fileName    string
	contentType string
	data        []byte
	ref         types.ArtifactRef
}

// GenerateDailyExport runs the export of tenantID for reportDate. A run
// already executing for the same key is rejected at once with an error
// matching ErrExportInProgress. An existing record for the key does not
// stop the run; it is replaced.
func (o *Orchestrator) GenerateDailyExport(ctx context.Context, tenantID, reportDate string, opts Options) (*Result, error) {
	if err := validateArgs(tenantID, reportDate); err != nil {
		return nil, &StageError{Stage: StageValidation, Err: err}
	}

	key := types.ExportKey(tenantID, reportDate)
	release, err := o.deps.Locker.TryAcquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			metrics.ExportsInProgressRejected.Inc()
			o.deps.Events.Publish(&events.Event{
				Type:       events.EventExportRejected,
				TenantID:   tenantID,
				ReportDate: reportDate,
				Message:    "export already in progress",
			})
			return nil, &InProgressError{TenantID: tenantID, ReportDate: reportDate}
		}
		return nil, fmt.Errorf("failed to acquire export lock: %w", err)
	}
	defer release()

	now := o.now().UTC()
	r := &run{
		started: now,
		timer:   metrics.NewTimer(),
		logger:  log.WithExport(o.logger, tenantID, reportDate),
		rec: &types.ExportRecord{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			ReportDate: reportDate,
			Status:     types.ExportStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	r.logger = r.logger.With().Str("export_id", r.rec.ID).Logger()

	if err := o.deps.Store.CreateExport(ctx, r.rec); err != nil {
		return nil, &StageError{Stage: StageStorage, ExportID: r.rec.ID, Err: fmt.Errorf("create export record: %w", err)}
	}
	o.audit(ctx, audit.ActionExportStarted, r.rec, audit.StatusSuccess, nil)
	o.deps.Events.Publish(&events.Event{
		Type:       events.EventExportStarted,
		TenantID:   tenantID,
		ReportDate: reportDate,
		ExportID:   r.rec.ID,
	})
	r.logger.Info().Msg("Export started")

	result, stage, err := o.execute(ctx, r, opts)
	if err != nil {
		return nil, o.fail(ctx, r, stage, err)
	}

	r.timer.ObserveDuration(metrics.ExportDuration)
	metrics.ExportsTotal.WithLabelValues(string(types.ExportStatusCompleted)).Inc()
	return result, nil
}

// execute runs steps 2 through 12 and returns the stage of any failure
func (o *Orchestrator) execute(ctx context.Context, r *run, opts Options) (*Result, Stage, error) {
	var err error

	r.tenant, err = o.deps.Store.GetTenant(ctx, r.rec.TenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, StageValidation, &ValidationError{Problems: []string{fmt.Sprintf("tenant %s has no export settings", r.rec.TenantID)}}
		}
		return nil, StageStorage, fmt.Errorf("load tenant settings: %w", err)
	}
	r.records, err = o.deps.Store.ListActivities(ctx, r.rec.TenantID, r.rec.ReportDate)
	if err != nil {
		return nil, StageStorage, fmt.Errorf("load activity records: %w", err)
	}

	if err := o.transition(ctx, r, types.ExportStatusProcessing); err != nil {
		return nil, StageStorage, err
	}

	if err := validateRecords(r.rec.TenantID, r.rec.ReportDate, r.records); err != nil {
		return nil, StageValidation, err
	}

	includeCSV := r.tenant.IncludeCSV
	if opts.IncludeCSV != nil {
		includeCSV = *opts.IncludeCSV
	}
	includePDF := r.tenant.IncludePDF
	if opts.IncludePDF != nil {
		includePDF = *opts.IncludePDF
	}
	if includePDF && o.deps.Renderer == nil {
		if opts.IncludePDF != nil {
			return nil, StageValidation, &ValidationError{Problems: []string{"pdf requested but rendering is disabled"}}
		}
		r.logger.Warn().Msg("PDF rendering disabled, tenant PDF setting ignored")
		includePDF = false
	}
	if !includeCSV && !includePDF {
		return nil, StageValidation, &ValidationError{Problems: []string{"neither csv nor pdf output is enabled"}}
	}

	if err := o.generate(ctx, r, includeCSV, includePDF); err != nil {
		return nil, StageGeneration, err
	}
	r.timer.Lap(metrics.ExportStageDuration, "generate")
	if err := o.store(ctx, r); err != nil {
		return nil, StageStorage, err
	}
	r.timer.Lap(metrics.ExportStageDuration, "upload")

	links, expires, err := o.presign(ctx, r, o.cfg.LinkTTL)
	if err != nil {
		return nil, StageStorage, err
	}

	stats := computeStats(r.records)
	for _, u := range r.uploads {
		stats.TotalSizeBytes += u.ref.Size
	}

	r.rec.TotalLogs = stats.TotalLogs
	r.rec.CompletedLogs = stats.CompletedLogs
	r.rec.FailedLogs = stats.FailedLogs
	r.rec.TotalSteps = stats.TotalSteps
	r.rec.TotalPhotos = stats.TotalPhotos
	r.rec.TotalSizeBytes = stats.TotalSizeBytes
	r.rec.ProcessingTimeMs = o.now().Sub(r.started).Milliseconds()
	r.rec.Artifacts = make(map[types.ArtifactKind]types.ArtifactRef, len(r.uploads))
	for _, u := range r.uploads {
		r.rec.Artifacts[u.kind] = u.ref
	}
	if err := o.transition(ctx, r, types.ExportStatusCompleted); err != nil {
		return nil, StageStorage, err
	}

	result := &Result{
		ExportID:         r.rec.ID,
		Status:           types.ExportStatusCompleted,
		DownloadURLs:     make(map[types.ArtifactKind]string, len(links)),
		LinksExpireAt:    expires,
		Stats:            stats,
		ProcessingTimeMs: r.rec.ProcessingTimeMs,
	}
	for kind, link := range links {
		result.DownloadURLs[kind] = link.URL
	}

	if !opts.SkipDelivery && o.deps.Dispatcher != nil {
		result.Delivery = o.deliver(ctx, r, links, expires, stats, opts.DeliveryChannels)
		r.timer.Lap(metrics.ExportStageDuration, "deliver")
	}

	o.audit(ctx, audit.ActionExportCompleted, r.rec, audit.StatusSuccess, map[string]any{
		"status":           r.rec.Status,
		"stats":            stats,
		"archive_sha256":   r.archive.SHA256,
		"manifest_sha256":  r.manifest.ManifestSHA256,
		"processing_ms":    r.rec.ProcessingTimeMs,
		"delivery_skipped": opts.SkipDelivery,
	})
	o.deps.Events.Publish(&events.Event{
		Type:       events.EventExportCompleted,
		TenantID:   r.rec.TenantID,
		ReportDate: r.rec.ReportDate,
		ExportID:   r.rec.ID,
		Metadata: map[string]string{
			"total_logs":     fmt.Sprint(stats.TotalLogs),
			"archive_sha256": r.archive.SHA256,
		},
	})
	r.logger.Info().
		Int("logs", stats.TotalLogs).
		Int("photos", stats.TotalPhotos).
		Int64("bytes", stats.TotalSizeBytes).
		Int64("processing_ms", r.rec.ProcessingTimeMs).
		Msg("Export completed")

	return result, "", nil
}

// generate renders CSVs, PDF, manifest, checksums and the archive
func (o *Orchestrator) generate(ctx context.Context, r *run, includeCSV, includePDF bool) error {
	generatedAt := o.now().UTC()
	var artifacts []manifest.Artifact

	if includeCSV {
		set, err := content.GenerateCSV(r.rec.TenantID, r.rec.ReportDate, r.records)
		if err != nil {
			return fmt.Errorf("generate csv: %w", err)
		}
		r.csv = set
		for _, table := range set.Tables() {
			rows := table.RowCount()
			artifacts = append(artifacts, manifest.Artifact{
				Kind:        table.Kind,
				FileName:    table.FileName,
				ContentType: content.CSVContentType,
				Data:        table.Data,
				SHA256:      table.SHA256,
				RowCount:    &rows,
			})
		}
	}

	if includePDF {
		report := content.BuildReport(r.tenant, r.rec.ReportDate, r.records, generatedAt, o.cfg.Location)
		doc, err := content.GeneratePDF(ctx, o.deps.Renderer, report)
		if err != nil {
			return err
		}
		r.pdf = doc
		artifacts = append(artifacts, manifest.Artifact{
			Kind:        types.ArtifactPDF,
			FileName:    doc.FileName,
			ContentType: content.PDFContentType,
			Data:        doc.Data,
			SHA256:      doc.SHA256,
		})
	}

	retention := r.tenant.RetentionDays
	if retention <= 0 {
		retention = o.cfg.DefaultRetentionDays
	}
	stats := computeStats(r.records)

	m, err := manifest.Build(manifest.Input{
		ExportID:      r.rec.ID,
		TenantID:      r.rec.TenantID,
		ReportDate:    r.rec.ReportDate,
		GeneratedAt:   generatedAt,
		RetentionDays: retention,
		// both backends encrypt at rest
		EncryptedAtRest: true,
		Stats:           stats,
		Artifacts:       artifacts,
	})
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	r.manifest = m

	var files []archive.File
	if r.csv != nil {
		for _, table := range r.csv.Tables() {
			files = append(files, archive.File{Name: table.FileName, Data: table.Data})
		}
	}
	files = append(files,
		archive.File{Name: m.ManifestName, Data: m.ManifestData},
		archive.File{Name: m.ChecksumsName, Data: m.ChecksumsData},
	)
	zipped, err := archive.Build(r.rec.ReportDate, files, generatedAt)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}
	r.archive = zipped

	if r.csv != nil {
		for _, table := range r.csv.Tables() {
			r.uploads = append(r.uploads, upload{kind: table.Kind, fileName: table.FileName, contentType: content.CSVContentType, data: table.Data})
		}
	}
	if r.pdf != nil {
		r.uploads = append(r.uploads, upload{kind: types.ArtifactPDF, fileName: r.pdf.FileName, contentType: content.PDFContentType, data: r.pdf.Data})
	}
	r.uploads = append(r.uploads,
		upload{kind: types.ArtifactManifest, fileName: m.ManifestName, contentType: manifest.ManifestContentType, data: m.ManifestData},
		upload{kind: types.ArtifactChecksums, fileName: m.ChecksumsName, contentType: manifest.ChecksumsContentType, data: m.ChecksumsData},
		upload{kind: types.ArtifactArchive, fileName: zipped.FileName, contentType: archive.ContentType, data: zipped.Data},
	)
	return nil
}

// store uploads every artifact. The first failure aborts the run.
func (o *Orchestrator) store(ctx context.Context, r *run) error {
	for i := range r.uploads {
		u := &r.uploads[i]
		key := o.deps.Objects.Key(r.rec.TenantID, r.rec.ReportDate, u.fileName)
		res, err := o.deps.Objects.Upload(ctx, key, u.data, u.contentType, map[string]string{
			"export-id":   r.rec.ID,
			"tenant-id":   r.rec.TenantID,
			"report-date": r.rec.ReportDate,
			"kind":        string(u.kind),
		})
		if err != nil {
			return err
		}
		u.ref = types.ArtifactRef{
			Key:         res.Key,
			FileName:    u.fileName,
			Size:        res.Size,
			SHA256:      res.SHA256,
			ContentType: u.contentType,
		}
	}
	return nil
}

func (o *Orchestrator) presign(ctx context.Context, r *run, ttl time.Duration) (map[types.ArtifactKind]*objectstore.Link, time.Time, error) {
	links := make(map[types.ArtifactKind]*objectstore.Link, len(r.uploads))
	var expires time.Time
	for _, u := range r.uploads {
		link, err := o.deps.Objects.Presign(ctx, u.ref.Key, ttl, u.fileName)
		if err != nil {
			return nil, time.Time{}, err
		}
		links[u.kind] = link
		expires = link.ExpiresAt
	}
	return links, expires, nil
}

// deliver dispatches the bundle and stores the outcome on the record
func (o *Orchestrator) deliver(ctx context.Context, r *run, links map[types.ArtifactKind]*objectstore.Link, expires time.Time, stats types.ExportStats, channels []delivery.Channel) *delivery.Result {
	bundle := &delivery.Bundle{
		ExportID:      r.rec.ID,
		TenantID:      r.rec.TenantID,
		TenantName:    r.tenant.Name,
		ReportDate:    r.rec.ReportDate,
		GeneratedAt:   r.started,
		Stats:         stats,
		LinksExpireAt: expires,
		Archive: &delivery.Attachment{
			FileName:    r.archive.FileName,
			ContentType: archive.ContentType,
			Data:        r.archive.Data,
		},
	}
	if r.pdf != nil {
		bundle.PDF = &delivery.Attachment{FileName: r.pdf.FileName, ContentType: content.PDFContentType, Data: r.pdf.Data}
	}
	for _, u := range r.uploads {
		f := delivery.File{Kind: u.kind, FileName: u.fileName, SHA256: u.ref.SHA256, Size: u.ref.Size}
		if link := links[u.kind]; link != nil {
			f.URL = link.URL
		}
		bundle.Files = append(bundle.Files, f)
	}

	res := o.deps.Dispatcher.Deliver(ctx, bundle, r.tenant, channels)
	if err := o.deps.Store.RecordDelivery(ctx, r.rec.ID, res.Update()); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to record delivery outcome")
	}

	failed := res.Failed()
	msg := "all channels delivered"
	if len(failed) > 0 {
		msg = fmt.Sprintf("%d channel(s) failed", len(failed))
	}
	o.deps.Events.Publish(&events.Event{
		Type:       events.EventDeliveryCompleted,
		TenantID:   r.rec.TenantID,
		ReportDate: r.rec.ReportDate,
		ExportID:   r.rec.ID,
		Message:    msg,
	})
	return res
}

func (o *Orchestrator) transition(ctx context.Context, r *run, status types.ExportStatus) error {
	r.rec.Status = status
	r.rec.UpdatedAt = o.now().UTC()
	if err := o.deps.Store.UpdateExport(ctx, r.rec); err != nil {
		return fmt.Errorf("update export record to %s: %w", status, err)
	}
	return nil
}

// fail moves the record to FAILED, audits it and wraps err with its stage
func (o *Orchestrator) fail(ctx context.Context, r *run, stage Stage, err error) error {
	r.rec.ErrorMessage = err.Error()
	r.rec.ProcessingTimeMs = o.now().Sub(r.started).Milliseconds()
	if terr := o.transition(ctx, r, types.ExportStatusFailed); terr != nil {
		r.logger.Error().Err(terr).Msg("Failed to mark export as failed")
	}

	o.audit(ctx, audit.ActionExportFailed, r.rec, audit.StatusFailure, map[string]any{
		"status": types.ExportStatusFailed,
		"stage":  stage,
		"error":  err.Error(),
	})
	o.deps.Events.Publish(&events.Event{
		Type:       events.EventExportFailed,
		TenantID:   r.rec.TenantID,
		ReportDate: r.rec.ReportDate,
		ExportID:   r.rec.ID,
		Message:    err.Error(),
		Metadata:   map[string]string{"stage": string(stage)},
	})

	r.timer.ObserveDuration(metrics.ExportDuration)
	metrics.ExportsTotal.WithLabelValues(string(types.ExportStatusFailed)).Inc()
	r.logger.Error().Err(err).Str("stage", string(stage)).Msg("Export failed")

	return &StageError{Stage: stage, ExportID: r.rec.ID, Err: err}
}

func (o *Orchestrator) audit(ctx context.Context, action string, rec *types.ExportRecord, status string, values any) {
	o.deps.Audit.Record(ctx, audit.Entry{
		Action:       action,
		ResourceType: audit.ResourceDailyExport,
		ResourceID:   rec.ID,
		ResourceName: rec.Key(),
		NewValues:    values,
		Status:       status,
	})
}

// RunStatus reports whether an export key is running and its stored record
type RunStatus struct {
	TenantID   string              `json:"tenant_id"`
	ReportDate string              `json:"report_date"`
	InProgress bool                `json:"in_progress"`
	Record     *types.ExportRecord `json:"record,omitempty"`
}

// Status looks up the lock and the record of tenantID and reportDate. A
// run that has taken the lock but not yet written its record shows as in
// progress with no record.
func (o *Orchestrator) Status(ctx context.Context, tenantID, reportDate string) (*RunStatus, error) {
	if err := validateArgs(tenantID, reportDate); err != nil {
		return nil, err
	}

	held, err := o.deps.Locker.Held(ctx, types.ExportKey(tenantID, reportDate))
	if err != nil {
		return nil, fmt.Errorf("failed to check export lock: %w", err)
	}
	st := &RunStatus{TenantID: tenantID, ReportDate: reportDate, InProgress: held}

	rec, err := o.deps.Store.FindExport(ctx, tenantID, reportDate)
	switch {
	case err == nil:
		st.Record = rec
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return st, nil
}

// IssueLinks mints fresh download links for the artifacts of a completed
// export. A non-positive ttl uses the gateway default.
func (o *Orchestrator) IssueLinks(ctx context.Context, exportID string, ttl time.Duration) (map[types.ArtifactKind]*objectstore.Link, error) {
	rec, err := o.deps.Store.GetExport(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.ExportStatusCompleted {
		return nil, fmt.Errorf("export %s is %s, links are only issued for completed exports", exportID, rec.Status)
	}

	links := make(map[types.ArtifactKind]*objectstore.Link, len(rec.Artifacts))
	for kind, ref := range rec.Artifacts {
		link, err := o.deps.Objects.Presign(ctx, ref.Key, ttl, ref.FileName)
		if err != nil {
			return nil, err
		}
		links[kind] = link
	}

	o.audit(ctx, audit.ActionExportLinksIssued, rec, audit.StatusSuccess, map[string]any{
		"artifacts": len(links),
		"ttl":       ttl.String(),
	})
	return links, nil
}
