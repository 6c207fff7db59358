package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/events"
	"github.com/rpattn/canvass/internal/metrics"
	"github.com/rpattn/canvass/internal/queue"
	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/storage"
)

// ErrJobNotRunnable is returned when the job is no longer pending, typically
// because its queue message was redelivered.
var ErrJobNotRunnable = errors.New("import job is no longer runnable")

const (
	DefaultCheckpointEvery = 250
	maxErrorLength         = 2048
	finalizeTimeout        = 15 * time.Second

	unknownValue = "Unknown"
	unknownState = "NA"
	unknownZip   = "00000"
)

// GeoReference is the placeholder point used when a row carries no coordinates.
type GeoReference struct {
	Latitude  float64
	Longitude float64
	Jitter    float64
}

// DefaultGeoReference is central Indianapolis jittered by 0.01 degrees.
var DefaultGeoReference = GeoReference{Latitude: 39.7684, Longitude: -86.1581, Jitter: 0.01}

// Recorder receives import metrics.
type Recorder interface {
	JobFinished(status string, elapsed time.Duration)
	Rows(outcome string, n int)
}

type Service struct {
	store     repository.Store
	objects   storage.ObjectStore
	converter Converter
	events    events.Publisher
	metrics   Recorder
	logger    *logrus.Entry

	checkpointEvery int
	geo             GeoReference
	random          func() float64
	now             func() time.Time
}

type Option func(*Service)

// WithObjectStore enables file-sourced jobs.
func WithObjectStore(store storage.ObjectStore) Option {
	return func(s *Service) {
		s.objects = store
	}
}

// WithConverter sets the spreadsheet to CSV adapter.
func WithConverter(converter Converter) Option {
	return func(s *Service) {
		if converter != nil {
			s.converter = converter
		}
	}
}

func WithEvents(publisher events.Publisher) Option {
	return func(s *Service) {
		if publisher != nil {
			s.events = publisher
		}
	}
}

func WithMetrics(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCheckpointEvery sets how many rows are committed per transaction.
func WithCheckpointEvery(rows int) Option {
	return func(s *Service) {
		if rows > 0 {
			s.checkpointEvery = rows
		}
	}
}

func WithGeoReference(ref GeoReference) Option {
	return func(s *Service) {
		s.geo = ref
	}
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(s *Service) {
		if fn != nil {
			s.random = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		converter:       NewSubprocessConverter("xlsx2csv", DefaultConvertTimeout),
		events:          events.Nop{},
		metrics:         metrics.Import{},
		logger:          logrus.NewEntry(logrus.StandardLogger()).WithField("component", "import"),
		checkpointEvery: DefaultCheckpointEvery,
		geo:             DefaultGeoReference,
		random:          rand.Float64,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one import job end to end. The job must be pending; any other
// state yields ErrJobNotRunnable without touching the job.
func (s *Service) Run(ctx context.Context, payload Payload) (err error) {
	if validateErr := payload.Validate(); validateErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, validateErr)
	}
	logger := s.logger.WithFields(logrus.Fields{
		"job_id":    payload.JobID,
		"tenant_id": payload.TenantID,
	})

	job, err := s.store.Repos().ImportJobs.MarkProcessing(ctx, payload.TenantID, payload.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrImportJobStatusConflict) || errors.Is(err, domain.ErrNotFound) {
			logger.WithError(err).Info("import job not runnable, skipping")
			return ErrJobNotRunnable
		}
		return fmt.Errorf("failed to start import job: %w", err)
	}

	started := s.now()
	s.publish(ctx, logger, events.ImportEvent{Type: events.ImportStarted, JobID: job.ID, TenantID: job.OrganizationID})
	logger.Info("import job started")

	defer func() {
		if rec := recover(); rec != nil {
			err = s.failJob(ctx, logger, job, fmt.Errorf("import panic: %v", rec), started)
		}
	}()

	result, err := s.execute(ctx, logger, job, payload)
	if err != nil {
		return s.failJob(ctx, logger, job, err, started)
	}
	if err := s.completeJob(ctx, job, result); err != nil {
		return s.failJob(ctx, logger, job, err, started)
	}

	s.metrics.JobFinished(string(domain.ImportJobStatusCompleted), s.now().Sub(started))
	resultJSON, _ := json.Marshal(result)
	s.publish(ctx, logger, events.ImportEvent{
		Type:     events.ImportCompleted,
		JobID:    job.ID,
		TenantID: job.OrganizationID,
		Result:   resultJSON,
	})
	logger.WithFields(logrus.Fields{
		"imported": result.ImportedCount,
		"skipped":  result.SkippedMissingExternalID,
		"total":    result.TotalRows,
	}).Info("import job completed")
	return nil
}

func (s *Service) execute(ctx context.Context, logger *logrus.Entry, job domain.ImportJob, payload Payload) (domain.ImportResult, error) {
	rows, err := s.resolveRows(ctx, logger, job, payload)
	if err != nil {
		return domain.ImportResult{}, err
	}
	return s.importRows(ctx, job, rows)
}

func (s *Service) resolveRows(ctx context.Context, logger *logrus.Entry, job domain.ImportJob, payload Payload) ([]MappedRow, error) {
	if key := strings.TrimSpace(payload.FileKey); key != "" {
		return s.resolveFileRows(ctx, logger, job, key)
	}

	if err := s.progress(ctx, job, domain.ImportPhaseParsing, 0, len(payload.Voters)); err != nil {
		return nil, err
	}
	rows := make([]MappedRow, 0, len(payload.Voters))
	ignoredSet := map[string]struct{}{}
	for _, raw := range payload.Voters {
		row, ignored := MapInlineRow(raw)
		rows = append(rows, row)
		for _, key := range ignored {
			ignoredSet[key] = struct{}{}
		}
	}
	if len(ignoredSet) > 0 {
		ignored := make([]string, 0, len(ignoredSet))
		for key := range ignoredSet {
			ignored = append(ignored, key)
		}
		sort.Strings(ignored)
		if err := s.store.Repos().ImportJobs.RecordFileInfo(ctx, job.OrganizationID, job.ID, domain.ImportFileInfo{IgnoredColumns: ignored}); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (s *Service) resolveFileRows(ctx context.Context, logger *logrus.Entry, job domain.ImportJob, key string) ([]MappedRow, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("no object store configured for file import %s", key)
	}
	if !storage.TenantOwnsKey(job.OrganizationID, key) {
		return nil, fmt.Errorf("%w: import file %s is outside the organization's prefix", storage.ErrNotAccessible, key)
	}
	if err := s.progress(ctx, job, domain.ImportPhaseDownloading, 0, 0); err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download import file: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	// Recorded before conversion: a job that fails later still carries its hash.
	info := domain.ImportFileInfo{FileHash: hash}
	previous, err := s.store.Repos().ImportJobs.FindLatestByFileHash(ctx, job.OrganizationID, job.Type, hash, job.ID)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		info.DuplicateOf = &domain.DuplicateJobRef{
			JobID:     previous.ID,
			Status:    previous.Status,
			CreatedAt: previous.CreatedAt,
		}
		logger.WithField("duplicate_of", previous.ID).Warn("import file matches an earlier job")
	}
	if err := s.store.Repos().ImportJobs.RecordFileInfo(ctx, job.OrganizationID, job.ID, info); err != nil {
		return nil, err
	}

	if IsSpreadsheetKey(key) {
		if err := s.progress(ctx, job, domain.ImportPhaseConverting, 0, 0); err != nil {
			return nil, err
		}
		data, err = s.converter.ToCSV(ctx, data)
		if err != nil {
			return nil, err
		}
	}

	if err := s.progress(ctx, job, domain.ImportPhaseParsing, 0, 0); err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	if len(doc.FieldMap.Ignored) > 0 {
		ignored := domain.ImportFileInfo{IgnoredColumns: doc.FieldMap.Ignored}
		if err := s.store.Repos().ImportJobs.RecordFileInfo(ctx, job.OrganizationID, job.ID, ignored); err != nil {
			return nil, err
		}
	}
	return doc.Rows, nil
}

// importRows upserts rows in file order. Each chunk and its progress update
// commit together, so a crash leaves everything before the last checkpoint.
func (s *Service) importRows(ctx context.Context, job domain.ImportJob, rows []MappedRow) (domain.ImportResult, error) {
	total := len(rows)
	result := domain.ImportResult{TotalRows: total}
	if err := s.progress(ctx, job, domain.ImportPhaseImporting, 0, total); err != nil {
		return result, err
	}

	for start := 0; start < total; start += s.checkpointEvery {
		end := min(start+s.checkpointEvery, total)

		var inserted, updated int
		var skipped []domain.ImportRowIssue
		err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
			inserted, updated, skipped = 0, 0, skipped[:0]
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				voter, ok := s.buildVoter(job.OrganizationID, rows[i])
				if !ok {
					skipped = append(skipped, domain.ImportRowIssue{Row: i + 1, Reason: domain.RowIssueMissingExternalID})
					continue
				}
				_, created, err := repos.Voters.UpsertImported(ctx, voter)
				if err != nil {
					return fmt.Errorf("row %d: %w", i+1, err)
				}
				if created {
					inserted++
				} else {
					updated++
				}
			}
			return repos.ImportJobs.UpdateProgress(ctx, job.OrganizationID, job.ID, domain.ImportProgress{
				Phase:         domain.ImportPhaseImporting,
				RowsProcessed: end,
				TotalRows:     total,
			})
		})
		if err != nil {
			return result, err
		}

		result.InsertedCount += inserted
		result.UpdatedCount += updated
		result.ImportedCount += inserted + updated
		result.SkippedMissingExternalID += len(skipped)
		for _, issue := range skipped {
			result.RecordRowIssue(issue)
		}
		s.metrics.Rows(metrics.RowInserted, inserted)
		s.metrics.Rows(metrics.RowUpdated, updated)
		s.metrics.Rows(metrics.RowSkipped, len(skipped))
	}
	return result, nil
}

func (s *Service) completeJob(ctx context.Context, job domain.ImportJob, result domain.ImportResult) error {
	metadata, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal import result: %w", err)
	}
	return s.store.WithTx(ctx, func(repos repository.Repositories) error {
		if err := repos.ImportJobs.MarkCompleted(ctx, job.OrganizationID, job.ID, result); err != nil {
			return err
		}
		return repos.AuditLogs.Record(ctx, s.auditEntry(job, domain.AuditActionImportCompleted, metadata))
	})
}

// failJob records the failure and returns cause wrapped for the queue.
func (s *Service) failJob(ctx context.Context, logger *logrus.Entry, job domain.ImportJob, cause error, started time.Time) error {
	message := queue.ErrorText(cause, maxErrorLength)

	// The job context may already be cancelled; the failure must still land.
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	metadata, _ := json.Marshal(map[string]string{"error": message})
	markErr := s.store.WithTx(finalCtx, func(repos repository.Repositories) error {
		if err := repos.ImportJobs.MarkFailed(finalCtx, job.OrganizationID, job.ID, message); err != nil {
			return err
		}
		return repos.AuditLogs.Record(finalCtx, s.auditEntry(job, domain.AuditActionImportFailed, metadata))
	})
	if markErr != nil {
		logger.WithError(markErr).WithField("cause", message).Error("failed to mark import job failed")
		return fmt.Errorf("import failed: %w (marking failed: %v)", cause, markErr)
	}

	s.metrics.JobFinished(string(domain.ImportJobStatusFailed), s.now().Sub(started))
	s.publish(finalCtx, logger, events.ImportEvent{
		Type:     events.ImportFailed,
		JobID:    job.ID,
		TenantID: job.OrganizationID,
		Error:    message,
	})
	logger.WithError(cause).Warn("import job failed")
	return fmt.Errorf("import failed: %w", cause)
}

func (s *Service) progress(ctx context.Context, job domain.ImportJob, phase string, processed, total int) error {
	return s.store.Repos().ImportJobs.UpdateProgress(ctx, job.OrganizationID, job.ID, domain.ImportProgress{
		Phase:         phase,
		RowsProcessed: processed,
		TotalRows:     total,
	})
}

func (s *Service) publish(ctx context.Context, logger *logrus.Entry, event events.ImportEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.events.PublishImport(ctx, event); err != nil {
		logger.WithError(err).WithField("event", event.Type).Warn("failed to publish import event")
	}
}

func (s *Service) auditEntry(job domain.ImportJob, action string, metadata json.RawMessage) domain.AuditLogEntry {
	var userID *uuid.UUID
	if job.UserID != uuid.Nil {
		id := job.UserID
		userID = &id
	}
	return domain.AuditLogEntry{
		ID:             uuid.New(),
		OrganizationID: job.OrganizationID,
		UserID:         userID,
		Action:         action,
		Resource:       "import_job",
		ResourceID:     job.ID,
		Metadata:       metadata,
		CreatedAt:      s.now(),
	}
}

// buildVoter turns a mapped row into an imported voter. Rows without an
// external id report false.
func (s *Service) buildVoter(organizationID uuid.UUID, row MappedRow) (domain.Voter, bool) {
	externalID := strings.TrimSpace(row.ExternalID)
	if externalID == "" {
		return domain.Voter{}, false
	}

	voter := domain.Voter{
		OrganizationID: organizationID,
		ExternalID:     &externalID,
		Source:         domain.VoterSourceImport,
		FirstName:      orDefault(row.FirstName, unknownValue),
		MiddleName:     domain.StringPtr(row.MiddleName),
		LastName:       orDefault(row.LastName, unknownValue),
		Suffix:         domain.StringPtr(row.Suffix),
		Age:            parseAge(row.Age),
		Gender:         domain.StringPtr(row.Gender),
		Race:           domain.StringPtr(row.Race),
		Party:          domain.StringPtr(row.Party),
		Phone:          domain.StringPtr(row.Phone),
		Email:          domain.StringPtr(row.Email),
		Address:        orDefault(ComposeAddress(row), unknownValue),
		Unit:           domain.StringPtr(row.Unit),
		City:           orDefault(row.City, unknownValue),
		State:          orDefault(row.State, unknownState),
		Zip:            orDefault(row.Zip, unknownZip),
	}

	voter.Latitude = s.coordinate(row.Latitude, s.geo.Latitude, 90)
	voter.Longitude = s.coordinate(row.Longitude, s.geo.Longitude, 180)
	return voter, true
}

// coordinate parses raw, falling back to a jittered point near reference
// when raw is missing, not finite or outside [-limit, limit].
func (s *Service) coordinate(raw string, reference, limit float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err == nil && !math.IsNaN(value) && math.Abs(value) <= limit {
		return value
	}
	return reference + (s.random()*2-1)*s.geo.Jitter
}

// ComposeAddress returns the row's address, or one built from its discrete
// street components joined by single spaces.
func ComposeAddress(row MappedRow) string {
	if address := strings.Join(strings.Fields(row.Address), " "); address != "" {
		return address
	}
	parts := make([]string, 0, 4)
	for _, part := range []string{row.HouseNumber, row.HouseFraction, row.StreetDirection, row.StreetName} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// maxAge bounds accepted ages; anything larger is treated as absent.
const maxAge = 150

func parseAge(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if age, err := strconv.Atoi(raw); err == nil {
		if age < 0 || age > maxAge {
			return nil
		}
		return &age
	}
	// Spreadsheet exports often render integers as "45.0".
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f >= 0 && f <= maxAge {
		age := int(f)
		return &age
	}
	return nil
}
