package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
	"github.com/iota-uz/sar/modules/registry/services"
)

func newXLSXFixture(t *testing.T, opts ...StoreOption) *XLSXStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.xlsx")
	writeWorkbook(t, path, registryFixture())
	return NewXLSXStore(path, opts...)
}

func TestXLSXStore_LoadTables(t *testing.T) {
	store := newXLSXFixture(t)
	tables, err := store.LoadTables(context.Background())
	require.NoError(t, err)

	for _, sheet := range []string{level.SheetMeta, level.SheetLookups, level.SheetRules, level.SheetC1, level.SheetC2, level.SheetC3, level.SheetC4} {
		require.Contains(t, tables, sheet)
	}
	c4 := tables[level.SheetC4]
	require.Equal(t, 2, c4.Len())
	require.Equal(t, "human_id", c4.Columns[1])
	require.True(t, tables[level.SheetRules].IsEmpty())
}

func TestXLSXStore_RejectsNonWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("human_id,name\nPRJ-001,x\n"), 0o644))

	_, err := NewXLSXStore(path).LoadTables(context.Background())
	require.ErrorIs(t, err, ErrNotWorkbook)
}

func TestXLSXStore_Writes(t *testing.T) {
	ctx := context.Background()
	store := newXLSXFixture(t)

	require.NoError(t, store.UpdateFields(ctx, level.SheetC3, "cmp-001", map[string]string{"name": "Public API"}))
	require.NoError(t, store.SetStatus(ctx, level.SheetC4, "RUN-002", "retired"))
	require.NoError(t, store.AddField(ctx, level.SheetC4, "RUN-001", "region", "eu-west-1"))

	id, err := store.NextHumanID(ctx, level.SheetC4, "RUN-")
	require.NoError(t, err)
	require.Equal(t, "RUN-003", id)
	require.NoError(t, store.AppendRow(ctx, level.SheetC4, map[string]string{
		"human_id": id, "c3_human_id": "CMP-001", "name": "api-stage", "status": "draft",
	}))
	require.NoError(t, store.WriteMeta(ctx, map[string]string{"schema_dirty": "yes"}))

	tables, err := store.LoadTables(ctx)
	require.NoError(t, err)
	c3, _ := tables[level.SheetC3].Find("human_id", "CMP-001")
	require.Equal(t, "Public API", c3["name"])

	c4 := tables[level.SheetC4]
	require.Equal(t, 3, c4.Len())
	require.True(t, c4.HasColumn("region"))
	require.Equal(t, "eu-west-1", c4.Rows[0]["region"])
	require.Equal(t, "retired", c4.Rows[1]["status"])
	require.Equal(t, "api-stage", c4.Rows[2]["name"])

	require.Equal(t, "yes", services.MetaValues(tables[level.SheetMeta])["schema_dirty"])
	require.Equal(t, "platform", services.MetaValues(tables[level.SheetMeta])["owner"])

	headers, err := store.Headers(ctx, level.SheetC4)
	require.NoError(t, err)
	require.Equal(t, []string{"c3_human_id", "human_id", "status", "name", "vulnerabilities_detected", "region"}, headers)
}

func TestXLSXStore_WriteErrors(t *testing.T) {
	ctx := context.Background()
	store := newXLSXFixture(t)

	require.ErrorIs(t, store.UpdateFields(ctx, "Nope", "RUN-001", map[string]string{"name": "x"}), table.ErrSheetNotFound)
	require.ErrorIs(t, store.UpdateFields(ctx, level.SheetC4, "RUN-404", map[string]string{"name": "x"}), table.ErrRowNotFound)
	require.ErrorIs(t, store.AddField(ctx, level.SheetC4, "RUN-001", "name", "x"), table.ErrColumnExists)
	require.ErrorIs(t, store.AppendRow(ctx, level.SheetC4, map[string]string{"human_id": "run-001"}), table.ErrDuplicateID)
	require.ErrorIs(t, store.SetStatus(ctx, level.SheetMeta, "x", "y"), table.ErrColumnNotFound)
}

func TestXLSXStore_WriteMetaCreatesSheet(t *testing.T) {
	ctx := context.Background()
	fixture := registryFixture()[1:]
	path := filepath.Join(t.TempDir(), "registry.xlsx")
	writeWorkbook(t, path, fixture)
	store := NewXLSXStore(path)

	require.NoError(t, store.WriteMeta(ctx, map[string]string{"schema_hash": "abc"}))
	tables, err := store.LoadTables(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"schema_hash": "abc"}, services.MetaValues(tables[level.SheetMeta]))
}

func TestXLSXStore_Backup(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	backupDir := filepath.Join(t.TempDir(), "backups")
	store := newXLSXFixture(t, WithClock(func() time.Time { return at }), WithBackupDir(backupDir))

	path, err := store.Backup(context.Background())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(backupDir, "registry.xlsx.bak_20260301_140509"), path)

	original, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	copied, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, copied)
}

func TestXLSXStore_ServesRegistryService(t *testing.T) {
	ctx := context.Background()
	store := newXLSXFixture(t)
	svc := services.NewRegistryService(store, services.WithWriter(store), services.WithBackups(true))

	run, err := svc.Compute(ctx)
	require.NoError(t, err)
	require.Len(t, run.View.Rows, 2)
	require.Empty(t, run.Issues)

	id, run, err := svc.CreateRecord(ctx, level.C3, map[string]string{"c2_human_id": "APP-001", "name": "Worker"})
	require.NoError(t, err)
	require.Equal(t, "CMP-002", id)
	rec, ok := run.Levels[level.C3].Find("human_id", id)
	require.True(t, ok)
	require.Equal(t, "draft", rec["status"])

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
