package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
	"github.com/iota-uz/sar/pkg/eventbus"
)

var tracer = otel.Tracer("sar-registry")

// Store is the tabular storage provider the registry is read from.
type Store interface {
	LoadTables(ctx context.Context) (table.Set, error)
}

// Writer mutates the registry. Every call addresses a row by human_id and
// only touches columns that already exist unless stated otherwise.
type Writer interface {
	UpdateFields(ctx context.Context, sheet, humanID string, fields map[string]string) error
	AddField(ctx context.Context, sheet, humanID, field, value string) error
	AppendRow(ctx context.Context, sheet string, row map[string]string) error
	NextHumanID(ctx context.Context, sheet, prefix string) (string, error)
	SetStatus(ctx context.Context, sheet, humanID, status string) error
	WriteMeta(ctx context.Context, updates map[string]string) error
	Headers(ctx context.Context, sheet string) ([]string, error)
	Backup(ctx context.Context) (string, error)
}

// ConfigSource supplies LOOKUPS and RULES from somewhere other than the registry itself.
type ConfigSource interface {
	LoadConfig(ctx context.Context) (lookups table.Table, rules table.Table, err error)
}

// RunSink receives every successful computation.
type RunSink interface {
	SaveRun(ctx context.Context, run *Run) error
}

// Run is a computation with its identity and summary.
type Run struct {
	ID          uuid.UUID     `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     issue.Summary `json:"summary"`
	*Result
}

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// RegistryService is the caller-owned session around one registry: it owns
// the storage handles and the last computed run.
type RegistryService struct {
	store   Store
	writer  Writer
	config  ConfigSource
	sink    RunSink
	events  eventbus.EventBus
	logger  *logrus.Entry
	backups bool
	cache   runCache
}

type Option func(*RegistryService)

func WithWriter(w Writer) Option { return func(s *RegistryService) { s.writer = w } }

func WithConfigSource(c ConfigSource) Option { return func(s *RegistryService) { s.config = c } }

func WithRunSink(sink RunSink) Option { return func(s *RegistryService) { s.sink = sink } }

func WithLogger(l *logrus.Entry) Option { return func(s *RegistryService) { s.logger = l } }

// WithBackups makes every write take a backup of the registry first.
func WithBackups(enabled bool) Option { return func(s *RegistryService) { s.backups = enabled } }

func NewRegistryService(store Store, opts ...Option) *RegistryService {
	s := &RegistryService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.ErrorLevel)
		s.logger = logrus.NewEntry(l)
	}
	s.logger = s.logger.WithField("component", "registry")
	return s
}

// Compute reloads every table and recomputes from scratch.
func (s *RegistryService) Compute(ctx context.Context) (*Run, error) {
	ctx, span := tracer.Start(ctx, "registry.compute")
	defer span.End()

	start := time.Now()
	run, err := s.compute(ctx)
	recordCompute(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithError(err).Error("registry compute failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("sar.run_id", run.ID.String()),
		attribute.Int("sar.issues", len(run.Issues)),
		attribute.Int("sar.view_rows", len(run.View.Rows)),
	)
	recordResult(run.Result)
	s.cache.Set(run)
	s.logger.WithFields(logrus.Fields{
		"run_id":      run.ID.String(),
		"duration_ms": time.Since(start).Milliseconds(),
		"view_rows":   len(run.View.Rows),
		"errors":      run.Summary.Errors,
		"warnings":    run.Summary.Warnings,
	}).Info("registry computed")

	if s.sink != nil {
		if err := s.sink.SaveRun(ctx, run); err != nil {
			s.logger.WithError(err).WithField("run_id", run.ID.String()).Warn("failed to persist compute run")
		}
	}
	return run, nil
}

func (s *RegistryService) compute(ctx context.Context) (*Run, error) {
	tables, err := s.store.LoadTables(ctx)
	if err != nil {
		return nil, err
	}
	if s.config != nil {
		lookups, rules, err := s.config.LoadConfig(ctx)
		if err != nil {
			return nil, err
		}
		tables[level.SheetLookups] = lookups
		tables[level.SheetRules] = rules
	}
	res, err := Compute(tables)
	if err != nil {
		return nil, newServiceError(http.StatusUnprocessableEntity, "REGISTRY_MISSING_TABLE", "registry is missing required sheets", err)
	}
	return &Run{
		ID:          uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Summary:     issue.Summarize(res.Issues),
		Result:      res,
	}, nil
}

// Current returns the last run, computing one if none is cached.
func (s *RegistryService) Current(ctx context.Context) (*Run, error) {
	if run, ok := s.cache.Get(); ok {
		recordCacheRequest(true)
		return run, nil
	}
	recordCacheRequest(false)
	return s.Compute(ctx)
}

// Invalidate drops the cached run so the next read recomputes.
func (s *RegistryService) Invalidate() {
	s.cache.Invalidate()
}

// IsMissingTable reports whether err comes from a registry lacking required sheets.
func IsMissingTable(err error) bool {
	return errors.Is(err, ErrMissingTable)
}
