package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// ErrMissingTable aborts a computation when one of the required tables is absent.
var ErrMissingTable = errors.New("required table missing")

// RequiredTables are the sheets a computation cannot run without. META is optional.
func RequiredTables() []string {
	return []string{level.SheetLookups, level.SheetRules, level.SheetC1, level.SheetC2, level.SheetC3, level.SheetC4}
}

// Snapshot is the normalized input of one computation.
type Snapshot struct {
	Levels  map[level.Level]table.Table
	Lookups table.Table
	Rules   table.Table
	Meta    table.Table
}

// Normalize checks that every required table is present and returns trimmed copies.
func Normalize(tables table.Set) (Snapshot, error) {
	var missing []string
	for _, name := range RequiredTables() {
		if _, ok := tables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrMissingTable, strings.Join(missing, ", "))
	}

	snap := Snapshot{Levels: make(map[level.Level]table.Table, 4)}
	for _, l := range level.Levels() {
		t := tables[l.Sheet()].Normalize()
		t.Name = l.Sheet()
		snap.Levels[l] = t
	}
	snap.Lookups = tables[level.SheetLookups].Normalize()
	snap.Rules = tables[level.SheetRules].Normalize()
	if meta, ok := tables[level.SheetMeta]; ok {
		snap.Meta = meta.Normalize()
	}
	return snap, nil
}

// MetaValues reads a key/value META table. Rows with a blank key are skipped.
func MetaValues(t table.Table) map[string]string {
	out := make(map[string]string)
	if !t.HasColumns("key", "value") {
		return out
	}
	for _, r := range t.Rows {
		k := strings.TrimSpace(r["key"])
		if k == "" {
			continue
		}
		out[k] = r["value"]
	}
	return out
}
