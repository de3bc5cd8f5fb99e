package lookup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

func lookupsTable(rows ...[]string) table.Table {
	return table.New(level.SheetLookups, []string{"lookup_name", "lookup_value", "level", "description"}, rows)
}

func TestTokenize(t *testing.T) {
	cases := map[string][]string{
		"":              nil,
		"  ":            nil,
		"prod":          {"prod"},
		"a, b;c":        {"a", "b", "c"},
		"a|b ; ; c,":    {"a", "b", "c"},
		" x , , y | z ": {"x", "y", "z"},
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, want, Tokenize(in))
		})
	}
}

func TestParse(t *testing.T) {
	cfg := Parse(lookupsTable(
		[]string{"status", "active", "", ""},
		[]string{"status", "retired", "ALL", ""},
		[]string{"criticality", "high", "c2", ""},
		[]string{"criticality", "low", "C3", ""},
		[]string{"", "orphan", "C1", ""},
		[]string{"tier", "", "C1", ""},
	))

	require.Equal(t, []string{"status", "criticality"}, cfg.Names())

	status, ok := cfg.Get("status")
	require.True(t, ok)
	require.Equal(t, []string{"active", "retired"}, status.SortedValues())
	require.Equal(t, []level.Level{level.All}, status.SortedLevels())

	crit, ok := cfg.Get("criticality")
	require.True(t, ok)
	require.Equal(t, []level.Level{level.C2, level.C3}, crit.SortedLevels())

	require.Equal(t, []string{"status"}, cfg.NamesFor(level.C1))
	require.Equal(t, []string{"criticality", "status"}, cfg.NamesFor(level.C2))
}

func TestParse_MissingColumnsYieldsEmptyConfig(t *testing.T) {
	tbl := table.New(level.SheetLookups, []string{"name", "value"}, [][]string{{"status", "active"}})
	cfg := Parse(tbl)
	require.Equal(t, 0, cfg.Len())
	require.Empty(t, cfg.NamesFor(level.C1))
}

func TestOptions(t *testing.T) {
	opts := Options(lookupsTable(
		[]string{"environment", "prod", "ALL", "Production"},
		[]string{"environment", "dev", "C4", ""},
		[]string{"tier", "gold", "C2", ""},
	), level.C4)

	require.Equal(t, []Option{{Value: "prod", Label: "Production"}, {Value: "dev", Label: "dev"}}, opts["environment"])
	require.Equal(t, opts["environment"], opts["environments"])
	require.NotContains(t, opts, "tier")
	require.Len(t, opts["vulnerabilities_detected"], 3)
}
