package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

func TestCompute_Scenario(t *testing.T) {
	res, err := Compute(scenarioTables())
	require.NoError(t, err)

	require.Len(t, res.View.Rows, 2)
	require.Equal(t, "RUN-0001", res.View.Rows[0]["c4__human_id"])
	require.Equal(t, "RUN-0002", res.View.Rows[1]["c4__human_id"])
	for _, r := range res.View.Rows {
		require.Equal(t, "CMP-0001", r["c3__human_id"])
		require.Equal(t, "APP-0001", r["c2__human_id"])
		require.Equal(t, "PRJ-0001", r["c1__human_id"])
	}

	require.Equal(t, []string{"RULE-R-NODESC-CMP-0002"}, issueIDs(res))
	require.Equal(t, issue.SeverityWarning, res.Issues[0].Severity)
	require.Equal(t, issue.TypeRule, res.Issues[0].Type)

	require.Equal(t, VulnNo, res.Levels[level.C1].Rows[0][VulnField])
	require.Equal(t, VulnNo, res.Levels[level.C2].Rows[0][VulnField])
	require.Equal(t, VulnNo, res.Levels[level.C3].Rows[0][VulnField])
	require.Equal(t, map[string]string{"schema_hash": "abc"}, res.Meta)
}

func TestCompute_Idempotent(t *testing.T) {
	tables := scenarioTables()
	a, err := Compute(tables)
	require.NoError(t, err)
	b, err := Compute(tables)
	require.NoError(t, err)

	require.Equal(t, a.View, b.View)
	require.Equal(t, a.Issues, b.Issues)
	require.Equal(t, a.Levels, b.Levels)
	// input untouched
	require.Equal(t, "", tables[level.SheetC3].Rows[0][VulnField])
}

func TestCompute_OrphanApplication(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetC2, c2Header,
		[]string{"PRJ-9999", "APP-0001", "active", "Checkout", ""},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	orphans := issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeOrphan })
	require.Len(t, orphans, 1)
	require.Equal(t, "C2-ORPHAN-APP-0001", orphans[0].ID)
	require.Equal(t, "PRJ-9999", orphans[0].ParentRef)
	require.Equal(t, issue.SeverityError, orphans[0].Severity)

	require.Empty(t, res.View.Rows)
}

func TestCompute_MissingRequiredTable(t *testing.T) {
	tables := scenarioTables()
	delete(tables, level.SheetRules)
	delete(tables, level.SheetC4)

	_, err := Compute(tables)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingTable))
	require.Contains(t, err.Error(), level.SheetRules)
	require.Contains(t, err.Error(), level.SheetC4)
}

func TestCompute_MetaIsOptional(t *testing.T) {
	tables := scenarioTables()
	delete(tables, level.SheetMeta)

	res, err := Compute(tables)
	require.NoError(t, err)
	require.Empty(t, res.Meta)
}

func TestCompute_DuplicateHumanIDs(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetC1, c1Header,
		[]string{"PRJ-0001", "active", "Payments", ""},
		[]string{"PRJ-0001", "active", "Payments copy", ""},
		[]string{"PRJ-0002", "active", "Ledger", ""},
		[]string{"PRJ-0002", "active", "Ledger copy", ""},
		[]string{"PRJ-0002", "active", "Ledger copy 2", ""},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	dups := issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Level == level.C1 && iss.HumanID != "" && iss.Type == issue.TypeMissingRequired })
	require.Len(t, dups, 2)
	require.Equal(t, "C1-DUP-PRJ-0001", dups[0].ID)
	require.Equal(t, "PRJ-0001", dups[0].HumanID)
	require.Equal(t, "C1-DUP-PRJ-0002", dups[1].ID)
}

func TestCompute_RequiredFields(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetC1, []string{"human_id", "name"},
		[]string{"PRJ-0001", ""},
		[]string{"", "Nameless"},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	ids := issueIDs(res)
	require.Contains(t, ids, "C1-MISSINGCOL-status")
	require.Contains(t, ids, "C1-REQ-PRJ-0001-name")
	require.Contains(t, ids, "C1-REQ-ROW1-human_id")
	require.NotContains(t, ids, "C1-REQ-ROW1-name")
}

func TestCompute_LookupTokenization(t *testing.T) {
	c4 := newTable(level.SheetC4, append(append([]string{}, c4Header...), "environment"),
		[]string{"CMP-0001", "RUN-0001", "active", "api", "no", "a, b;c"},
	)

	t.Run("all tokens allowed", func(t *testing.T) {
		tables := withTable(withTable(scenarioTables(), c4), newTable(level.SheetLookups, lookupsHeader,
			[]string{"environment", "a", "ALL", ""},
			[]string{"environment", "b", "", ""},
			[]string{"environment", "c", "C4", ""},
		))
		res, err := Compute(tables)
		require.NoError(t, err)
		require.Empty(t, issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeInvalidLookup }))
	})

	t.Run("one token rejected", func(t *testing.T) {
		tables := withTable(withTable(scenarioTables(), c4), newTable(level.SheetLookups, lookupsHeader,
			[]string{"environment", "a", "ALL", ""},
			[]string{"environment", "b", "ALL", ""},
		))
		res, err := Compute(tables)
		require.NoError(t, err)
		invalid := issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeInvalidLookup })
		require.Len(t, invalid, 1)
		require.Equal(t, "C4-LOOKUP-RUN-0001-environment-c", invalid[0].ID)
		require.Equal(t, "Use one of: a, b", invalid[0].SuggestedFix)
	})

	t.Run("lookup scoped to another level is ignored", func(t *testing.T) {
		tables := withTable(withTable(scenarioTables(), c4), newTable(level.SheetLookups, lookupsHeader,
			[]string{"environment", "prod", "C2", ""},
		))
		res, err := Compute(tables)
		require.NoError(t, err)
		require.Empty(t, issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeInvalidLookup }))
		require.Contains(t, issueIDs(res), "C2-LOOKUP-MISSINGFIELD-environment")
	})
}

func TestCompute_ConfigDrift(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetLookups, lookupsHeader,
		[]string{"criticality", "high", "C2", ""},
		[]string{"region", "eu", "ALL", ""},
	))
	tables = withTable(tables, newTable(level.SheetRules, rule.RequiredColumns,
		[]string{"R-OWNER", "C2", "g1", "AND", "owner", "empty", "", "error", "Owner missing", "Set owner"},
		[]string{"R-OWNER", "C2", "g1", "AND", "owner", "empty", "", "error", "Owner missing", "Set owner"},
		[]string{"R-STAT", "C2", "g1", "AND", "statuss", "eq", "x", "error", "typo", ""},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	drift := issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeConfigMissingField })
	ids := make([]string, 0, len(drift))
	for _, iss := range drift {
		ids = append(ids, iss.ID)
		require.Equal(t, issue.SeverityWarning, iss.Severity)
	}
	require.Equal(t, []string{
		"C2-LOOKUP-MISSINGFIELD-criticality",
		"C2-RULE-MISSINGFIELD-R-OWNER-owner",
		"C2-RULE-MISSINGFIELD-R-STAT-statuss",
	}, ids)
	require.Contains(t, drift[2].SuggestedFix, "Did you mean 'status'?")

	// a condition on a missing column never fires, even with op=empty
	require.Empty(t, issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.Type == issue.TypeRule }))
}

func TestCompute_VulnerabilityColumnAbsent(t *testing.T) {
	tables := scenarioTables()
	for _, l := range level.Levels() {
		src := tables[l.Sheet()]
		var header []string
		for _, c := range src.Columns {
			if c != VulnField {
				header = append(header, c)
			}
		}
		_, rows := table.Table{Columns: header, Rows: src.Rows}.Values()
		tables[l.Sheet()] = newTable(l.Sheet(), header, rows...)
	}

	res, err := Compute(tables)
	require.NoError(t, err)

	cfg := issue.Filter(res.Issues, func(iss issue.Issue) bool { return iss.ID == "CFG-VULN-MISSINGFIELD" })
	require.Len(t, cfg, 1)
	require.Equal(t, level.All, cfg[0].Level)
	for _, l := range level.Levels() {
		require.False(t, res.Levels[l].HasColumn(VulnField))
	}
}

func TestCompute_InvalidVulnerabilityValue(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetC4, c4Header,
		[]string{"CMP-0001", "RUN-0001", "active", "api", "maybe"},
		[]string{"CMP-0001", "RUN-0002", "active", "api", "YES"},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	require.Contains(t, issueIDs(res), "C4-VULN-INVALID-RUN-0001")
	c4 := res.Levels[level.C4]
	require.Equal(t, VulnUnknown, c4.Rows[0][VulnField])
	require.Equal(t, VulnYes, c4.Rows[1][VulnField])
	require.Equal(t, VulnYes, res.Levels[level.C3].Rows[0][VulnField])
	require.Equal(t, VulnYes, res.Levels[level.C1].Rows[0][VulnField])
}

func TestCompute_MissingParentRule(t *testing.T) {
	tables := withTable(scenarioTables(), newTable(level.SheetC4, c4Header,
		[]string{"CMP-0001", "RUN-0001", "active", "api", "no"},
		[]string{"CMP-9999", "RUN-0003", "active", "ghost", "no"},
	))
	tables = withTable(tables, newTable(level.SheetRules, rule.RequiredColumns,
		[]string{"R-PARENT", "C4", "g1", "AND", "_rel", "missing_parent", "C3", "", "Runtime without component", "Fix c3_human_id"},
	))

	res, err := Compute(tables)
	require.NoError(t, err)

	ids := issueIDs(res)
	require.Contains(t, ids, "C4-ORPHAN-RUN-0003")
	require.Contains(t, ids, "RULE-R-PARENT-RUN-0003")
	require.NotContains(t, ids, "RULE-R-PARENT-RUN-0001")

	require.Len(t, res.View.Rows, 1)
	require.Equal(t, "RUN-0001", res.View.Rows[0]["c4__human_id"])
}

func TestBuildView_Columns(t *testing.T) {
	res, err := Compute(scenarioTables())
	require.NoError(t, err)

	cols := res.View.Columns
	require.NotContains(t, cols, "c2__c1_human_id")
	require.NotContains(t, cols, "c3__c2_human_id")
	require.NotContains(t, cols, "c4__c3_human_id")
	require.Equal(t, "c4__human_id", cols[0])
	require.Contains(t, cols, "c1__vulnerabilities_detected")
	for _, r := range res.View.Rows {
		require.NotContains(t, r, "c4__c3_human_id")
		require.Len(t, r, len(cols))
	}
}

func TestBuildView_MissingJoinColumn(t *testing.T) {
	c3 := newTable(level.SheetC3, []string{"human_id", "status", "name"},
		[]string{"CMP-0001", "active", "API"},
	)
	view := buildView(scenarioTables()[level.SheetC1], scenarioTables()[level.SheetC2], c3, scenarioTables()[level.SheetC4])
	require.Empty(t, view.Rows)
	require.NotEmpty(t, view.Columns)
}
