package persistence

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
)

type sheetFixture struct {
	name string
	rows [][]string
}

func registryFixture() []sheetFixture {
	return []sheetFixture{
		{level.SheetMeta, [][]string{{"key", "value"}, {"owner", "platform"}}},
		{level.SheetLookups, [][]string{{"lookup_name", "lookup_value", "level", "description"}, {"status", "active", "", ""}, {"status", "draft", "", ""}}},
		{level.SheetRules, [][]string{rule.RequiredColumns}},
		{level.SheetC1, [][]string{
			{"human_id", "status", "name", "vulnerabilities_detected"},
			{"PRJ-001", "active", "Payments", ""},
		}},
		{level.SheetC2, [][]string{
			{"c1_human_id", "human_id", "status", "name", "vulnerabilities_detected"},
			{"PRJ-001", "APP-001", "active", "Checkout", ""},
		}},
		{level.SheetC3, [][]string{
			{"c2_human_id", "human_id", "status", "name", "vulnerabilities_detected"},
			{"APP-001", "CMP-001", "active", "API", ""},
		}},
		{level.SheetC4, [][]string{
			{"c3_human_id", "human_id", "status", "name", "vulnerabilities_detected"},
			{"CMP-001", "RUN-001", "active", "api-dev", "no"},
			{"CMP-001", "RUN-002", "active", "api-prod", "yes"},
		}},
	}
}

func writeWorkbook(t *testing.T, path string, sheets []sheetFixture) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { require.NoError(t, f.Close()) }()
	for _, s := range sheets {
		_, err := f.NewSheet(s.name)
		require.NoError(t, err)
		for i, row := range s.rows {
			cellName, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = v
			}
			require.NoError(t, f.SetSheetRow(s.name, cellName, &values))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	require.NoError(t, f.SaveAs(path))
}

func writeCSVDir(t *testing.T, dir string, sheets []sheetFixture) {
	t.Helper()
	for _, s := range sheets {
		f, err := os.Create(filepath.Join(dir, s.name+".csv"))
		require.NoError(t, err)
		_, err = f.Write([]byte{0xEF, 0xBB, 0xBF})
		require.NoError(t, err)
		w := csv.NewWriter(f)
		require.NoError(t, w.WriteAll(s.rows))
		require.NoError(t, f.Close())
	}
}
