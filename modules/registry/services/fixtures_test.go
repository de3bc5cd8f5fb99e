package services

import (
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

var (
	c1Header      = []string{"human_id", "status", "name", "vulnerabilities_detected"}
	c2Header      = []string{"c1_human_id", "human_id", "status", "name", "vulnerabilities_detected"}
	c3Header      = []string{"c2_human_id", "human_id", "status", "name", "vulnerabilities_detected"}
	c4Header      = []string{"c3_human_id", "human_id", "status", "name", "vulnerabilities_detected"}
	lookupsHeader = []string{"lookup_name", "lookup_value", "level", "description"}
)

func newTable(name string, header []string, rows ...[]string) table.Table {
	return table.New(name, header, rows)
}

// scenarioTables is PRJ-0001 > APP-0001 > {CMP-0001 > {RUN-0001, RUN-0002}, CMP-0002}.
func scenarioTables() table.Set {
	return table.Set{
		level.SheetMeta:    newTable(level.SheetMeta, []string{"key", "value"}, []string{"schema_hash", "abc"}),
		level.SheetLookups: newTable(level.SheetLookups, lookupsHeader),
		level.SheetRules: newTable(level.SheetRules, rule.RequiredColumns,
			[]string{"R-NODESC", "C3", "g1", "AND", "_rel", "no_descendant", "C4", "warning", "Component without runtime", "Add a runtime"},
		),
		level.SheetC1: newTable(level.SheetC1, c1Header,
			[]string{"PRJ-0001", "active", "Payments", ""},
		),
		level.SheetC2: newTable(level.SheetC2, c2Header,
			[]string{"PRJ-0001", "APP-0001", "active", "Checkout", ""},
		),
		level.SheetC3: newTable(level.SheetC3, c3Header,
			[]string{"APP-0001", "CMP-0001", "active", "API", ""},
			[]string{"APP-0001", "CMP-0002", "active", "Worker", "no"},
		),
		level.SheetC4: newTable(level.SheetC4, c4Header,
			[]string{"CMP-0001", "RUN-0002", "active", "api-prod", "No"},
			[]string{"CMP-0001", "RUN-0001", "active", "api-dev", "n"},
		),
	}
}

func withTable(set table.Set, t table.Table) table.Set {
	out := make(table.Set, len(set))
	for k, v := range set {
		out[k] = v
	}
	out[t.Name] = t
	return out
}

func issueIDs(res *Result) []string {
	out := make([]string, 0, len(res.Issues))
	for _, iss := range res.Issues {
		out = append(out, iss.ID)
	}
	return out
}
