package services

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const (
	metaSchemaDirty = "schema_dirty"
	metaSchemaHash  = "schema_hash"
)

// SchemaMap returns the normalized headers of every level sheet. A missing
// sheet maps to an empty list.
func (s *RegistryService) SchemaMap(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(level.Sheets()))
	if s.writer != nil {
		for _, sheet := range level.Sheets() {
			headers, err := s.writer.Headers(ctx, sheet)
			if err != nil && !errors.Is(err, table.ErrSheetNotFound) {
				return nil, err
			}
			out[sheet] = SchemaHeaders(headers)
		}
		return out, nil
	}
	tables, err := s.store.LoadTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, sheet := range level.Sheets() {
		out[sheet] = SchemaHeaders(tables[sheet].Columns)
	}
	return out, nil
}

// SchemaHeaders normalizes headers, dropping blanks and repeats.
func SchemaHeaders(headers []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		key := level.NormalizeKey(h)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// SchemaHash is the hex sha1 of the schema as compact JSON with sorted keys.
func SchemaHash(schema map[string][]string) (string, error) {
	normalized := make(map[string][]string, len(schema))
	for sheet, headers := range schema {
		if headers == nil {
			headers = []string{}
		}
		normalized[sheet] = headers
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return "", err
	}
	sum := sha1.Sum(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}
