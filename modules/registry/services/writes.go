package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// StatusDraft is the status a created record starts with when none is given.
const StatusDraft = "draft"

// UpdateFields writes existing columns of one record and recomputes.
func (s *RegistryService) UpdateFields(ctx context.Context, humanID string, fields map[string]string) (*Run, error) {
	meta, err := detect(humanID)
	if err != nil {
		return nil, err
	}
	normalized := normalizeFields(fields)
	if len(normalized) == 0 {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_NO_FIELDS", "no fields to update", nil)
	}
	if _, ok := normalized[level.FieldHumanID]; ok {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_FIELD_NOT_EDITABLE", "human_id cannot be changed", nil)
	}
	if err := checkVulnEditable(meta.Level, normalized); err != nil {
		return nil, err
	}
	if ref, ok := normalized[meta.ParentColumn]; ok && meta.ParentColumn != "" {
		parentID, err := s.resolveParentRef(ctx, meta, ref)
		if err != nil {
			return nil, err
		}
		normalized[meta.ParentColumn] = parentID
	}
	return s.write(ctx, &RecordChanged{Op: OpUpdateFields, Level: meta.Level, HumanID: humanID}, func(ctx context.Context) error {
		return s.writer.UpdateFields(ctx, meta.Sheet, humanID, normalized)
	})
}

// AddField appends a new column to the record's sheet, sets it on the record
// and marks the schema as dirty in META.
func (s *RegistryService) AddField(ctx context.Context, humanID, field, value string) (*Run, error) {
	meta, err := detect(humanID)
	if err != nil {
		return nil, err
	}
	field = level.NormalizeKey(field)
	if field == "" {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_NO_FIELDS", "field name is required", nil)
	}
	if err := checkVulnEditable(meta.Level, map[string]string{field: value}); err != nil {
		return nil, err
	}
	return s.write(ctx, &RecordChanged{Op: OpAddField, Level: meta.Level, HumanID: humanID}, func(ctx context.Context) error {
		if err := s.writer.AddField(ctx, meta.Sheet, humanID, field, value); err != nil {
			return err
		}
		s.markSchemaDirty(ctx)
		return nil
	})
}

// CreateRecord appends a new record to the level's sheet under a freshly
// generated human_id and returns that id.
func (s *RegistryService) CreateRecord(ctx context.Context, l level.Level, fields map[string]string) (string, *Run, error) {
	meta, ok := l.Meta()
	if !ok {
		return "", nil, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_LEVEL", "unknown level '"+string(l)+"' (expected C1|C2|C3|C4)", nil)
	}
	row := normalizeFields(fields)
	delete(row, level.FieldHumanID)
	if strings.TrimSpace(row[level.FieldName]) == "" {
		return "", nil, newServiceError(http.StatusBadRequest, "REGISTRY_MISSING_FIELD", "name is required", nil)
	}
	if err := checkVulnEditable(l, row); err != nil {
		return "", nil, err
	}
	if meta.ParentColumn != "" {
		parentID, err := s.resolveParentRef(ctx, meta, row[meta.ParentColumn])
		if err != nil {
			return "", nil, err
		}
		row[meta.ParentColumn] = parentID
	}
	if strings.TrimSpace(row[level.FieldStatus]) == "" {
		row[level.FieldStatus] = StatusDraft
	}

	change := &RecordChanged{Op: OpCreateRecord, Level: l}
	run, err := s.write(ctx, change, func(ctx context.Context) error {
		id, err := s.writer.NextHumanID(ctx, meta.Sheet, meta.Prefix)
		if err != nil {
			return err
		}
		row[level.FieldHumanID] = id
		if err := s.writer.AppendRow(ctx, meta.Sheet, row); err != nil {
			return err
		}
		change.HumanID = id
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return change.HumanID, run, nil
}

func (s *RegistryService) SetStatus(ctx context.Context, humanID, status string) (*Run, error) {
	meta, err := detect(humanID)
	if err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_MISSING_FIELD", "status is required", nil)
	}
	return s.write(ctx, &RecordChanged{Op: OpSetStatus, Level: meta.Level, HumanID: humanID}, func(ctx context.Context) error {
		return s.writer.SetStatus(ctx, meta.Sheet, humanID, status)
	})
}

func (s *RegistryService) write(ctx context.Context, change *RecordChanged, fn func(context.Context) error) (*Run, error) {
	if s.writer == nil {
		return nil, newServiceError(http.StatusConflict, "REGISTRY_READ_ONLY", "registry is opened read-only", nil)
	}
	op, target := change.Op, change.HumanID
	if target == "" {
		target = string(change.Level)
	}
	ctx, span := tracer.Start(ctx, "registry."+op)
	defer span.End()
	span.SetAttributes(attribute.String("sar.target", target))

	logger := s.logger.WithFields(logrus.Fields{"op": op, "target": target})
	if s.backups {
		path, err := s.writer.Backup(ctx)
		if err != nil {
			recordWrite(op, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, mapWriteError(err)
		}
		logger.WithField("backup", path).Info("registry backup written")
	}

	err := fn(ctx)
	recordWrite(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Warn("registry write rejected")
		return nil, mapWriteError(err)
	}
	logger.Info("registry write applied")

	s.Invalidate()
	run, err := s.Compute(ctx)
	if err != nil {
		return nil, err
	}
	change.Run = run
	s.publish(ctx, change)
	return run, nil
}

// resolveParentRef checks ref names an existing record one level up and
// returns its human_id as stored.
func (s *RegistryService) resolveParentRef(ctx context.Context, meta level.Meta, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", newServiceError(http.StatusBadRequest, "REGISTRY_INVALID_PARENT", meta.ParentColumn+" is required", nil)
	}
	parent, _ := meta.Level.Parent()
	refMeta, ok := level.Detect(ref)
	if !ok || refMeta.Level != parent {
		return "", newServiceError(http.StatusBadRequest, "REGISTRY_INVALID_PARENT",
			meta.ParentColumn+" '"+ref+"' must reference a "+string(parent)+" record", nil)
	}
	run, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	rec, ok := run.Levels[parent].Find(level.FieldHumanID, ref)
	if !ok {
		return "", newServiceError(http.StatusBadRequest, "REGISTRY_INVALID_PARENT",
			meta.ParentColumn+" '"+ref+"' does not exist in "+parent.Sheet(), nil)
	}
	return strings.TrimSpace(rec[level.FieldHumanID]), nil
}

func (s *RegistryService) markSchemaDirty(ctx context.Context) {
	schema, err := s.SchemaMap(ctx)
	if err == nil {
		var hash string
		if hash, err = SchemaHash(schema); err == nil {
			err = s.writer.WriteMeta(ctx, map[string]string{
				metaSchemaDirty: "yes",
				metaSchemaHash:  hash,
			})
		}
	}
	if err != nil {
		s.logger.WithError(err).Warn("failed to update schema metadata")
	}
}

func detect(humanID string) (level.Meta, error) {
	meta, ok := level.Detect(humanID)
	if !ok {
		return level.Meta{}, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_PREFIX", "human_id '"+humanID+"' has an unsupported prefix", nil)
	}
	return meta, nil
}

func normalizeFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		key := level.NormalizeKey(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	return out
}

// checkVulnEditable rejects vulnerabilities_detected on levels where it is derived.
func checkVulnEditable(l level.Level, fields map[string]string) error {
	if l != level.C1 && l != level.C2 {
		return nil
	}
	if _, ok := fields[VulnField]; ok {
		return newServiceError(http.StatusBadRequest, "REGISTRY_FIELD_NOT_EDITABLE",
			VulnField+" is derived on "+string(l)+" and cannot be edited", nil)
	}
	return nil
}

func mapWriteError(err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, table.ErrSheetNotFound), errors.Is(err, table.ErrRowNotFound):
		return newServiceError(http.StatusNotFound, "REGISTRY_NOT_FOUND", "record or sheet not found", err)
	case errors.Is(err, table.ErrColumnNotFound):
		return newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_FIELD", "field does not exist", err)
	case errors.Is(err, table.ErrColumnExists), errors.Is(err, table.ErrDuplicateID):
		return newServiceError(http.StatusConflict, "REGISTRY_CONFLICT", "write conflicts with existing data", err)
	default:
		return newServiceError(http.StatusInternalServerError, "REGISTRY_WRITE_FAILED", "registry write failed", err)
	}
}
