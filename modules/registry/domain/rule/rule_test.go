package rule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

type fakeRelations struct {
	parents map[string]string
	ids     map[level.Level][]string
	counts  map[string]int
}

func (f fakeRelations) ParentOf(_ level.Level, hid string) string { return f.parents[hid] }

func (f fakeRelations) Exists(l level.Level, hid string) bool {
	for _, id := range f.ids[l] {
		if id == hid {
			return true
		}
	}
	return false
}

func (f fakeRelations) DescendantCount(l, desc level.Level, hid string) (int, bool) {
	if l == level.C3 && desc == level.C4 {
		return f.counts[hid], true
	}
	return 0, false
}

func rulesTable(rows ...[]string) table.Table {
	return table.New(level.SheetRules, RequiredColumns, rows)
}

func TestParseCondition(t *testing.T) {
	require.Equal(t, FieldCompare{Field: "status", Op: OpEq, Value: "active"}, ParseCondition(" status ", "EQ", " active "))
	require.Equal(t, RelMissingParent{Parent: level.C1}, ParseCondition("_rel", "missing_parent", "c1"))
	require.Equal(t, RelNoDescendant{Descendant: level.C4}, ParseCondition("_rel", "No_Descendant", "C4"))
	require.Equal(t, Unsupported{Op: "has_cycle"}, ParseCondition("_rel", "has_cycle", ""))
}

func TestEvaluate_FieldCompare(t *testing.T) {
	tbl := table.Table{Columns: []string{"human_id", "status", "tags"}}
	rec := table.Record{"human_id": "APP-1", "status": " active ", "tags": "PCI, Internet"}
	target := Target{Level: level.C2, Table: tbl}

	cases := []struct {
		name string
		cond FieldCompare
		want bool
	}{
		{"eq", FieldCompare{Field: "status", Op: OpEq, Value: "active"}, true},
		{"eq case sensitive", FieldCompare{Field: "status", Op: OpEq, Value: "Active"}, false},
		{"ne", FieldCompare{Field: "status", Op: OpNe, Value: "retired"}, true},
		{"empty", FieldCompare{Field: "status", Op: OpEmpty}, false},
		{"not_empty", FieldCompare{Field: "status", Op: OpNotEmpty}, true},
		{"contains ignores case", FieldCompare{Field: "tags", Op: OpContains, Value: "internet"}, true},
		{"in", FieldCompare{Field: "status", Op: OpIn, Value: "draft, active"}, true},
		{"not_in", FieldCompare{Field: "status", Op: OpNotIn, Value: "draft,active"}, false},
		{"unknown op", FieldCompare{Field: "status", Op: "regex", Value: ".*"}, false},
		{"missing column", FieldCompare{Field: "owner", Op: OpEmpty}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Evaluate(tc.cond, target, rec))
		})
	}
}

func TestEvaluate_Relational(t *testing.T) {
	rel := fakeRelations{
		parents: map[string]string{"CMP-1": "APP-1", "CMP-2": "APP-9", "CMP-3": ""},
		ids:     map[level.Level][]string{level.C2: {"APP-1"}},
		counts:  map[string]int{"CMP-1": 2},
	}
	target := Target{Level: level.C3, Table: table.Table{Columns: []string{"human_id"}}, Relations: rel}

	missingParent := RelMissingParent{Parent: level.C2}
	require.False(t, Evaluate(missingParent, target, table.Record{"human_id": "CMP-1"}))
	require.True(t, Evaluate(missingParent, target, table.Record{"human_id": "CMP-2"}))
	require.True(t, Evaluate(missingParent, target, table.Record{"human_id": "CMP-3"}))

	noDesc := RelNoDescendant{Descendant: level.C4}
	require.False(t, Evaluate(noDesc, target, table.Record{"human_id": "CMP-1"}))
	require.True(t, Evaluate(noDesc, target, table.Record{"human_id": "CMP-2"}))

	unsupported := RelNoDescendant{Descendant: level.C2}
	require.False(t, Evaluate(unsupported, target, table.Record{"human_id": "CMP-2"}))
	require.False(t, Evaluate(Unsupported{Op: "x"}, target, table.Record{"human_id": "CMP-2"}))
}

func TestParse(t *testing.T) {
	rules, ok := Parse(rulesTable(
		[]string{"R2", "c3", "g1", "AND", "status", "eq", "retired", "", "Retired component", "Remove it"},
		[]string{"R1", "C2", "g2", "", "owner", "empty", "", "warning", "No owner", "Set owner"},
		[]string{"R1", "C3", "g1", "or", "status", "eq", "draft", "info", "ignored", "ignored"},
		[]string{"R1", "C2", "g1", "OR", "name", "contains", "tmp", "error", "ignored", "ignored"},
		[]string{"", "C1", "g1", "AND", "name", "empty", "", "", "", ""},
	))
	require.True(t, ok)
	require.Len(t, rules, 2)

	r1 := rules[0]
	require.Equal(t, "R1", r1.ID)
	require.Equal(t, level.C2, r1.Level)
	require.Equal(t, issue.SeverityWarning, r1.Severity)
	require.Equal(t, "No owner", r1.Message)
	require.Len(t, r1.Groups, 2)
	require.Equal(t, "g1", r1.Groups[0].ID)
	require.Equal(t, LogicOr, r1.Groups[0].Logic)
	require.Len(t, r1.Groups[0].Conditions, 2)
	require.Equal(t, LogicAnd, r1.Groups[1].Logic)

	r2 := rules[1]
	require.Equal(t, level.C3, r2.Level)
	require.Equal(t, issue.SeverityError, r2.Severity)
}

func TestParse_MissingColumns(t *testing.T) {
	tbl := table.New(level.SheetRules, []string{"rule_id", "level"}, [][]string{{"R1", "C1"}})
	rules, ok := Parse(tbl)
	require.False(t, ok)
	require.Nil(t, rules)
}

func TestRule_Matches(t *testing.T) {
	rules, ok := Parse(rulesTable(
		[]string{"R1", "C2", "g1", "AND", "status", "eq", "active", "", "", ""},
		[]string{"R1", "C2", "g1", "AND", "owner", "empty", "", "", "", ""},
		[]string{"R1", "C2", "g2", "AND", "name", "contains", "legacy", "", "", ""},
	))
	require.True(t, ok)
	r := rules[0]
	target := Target{Level: level.C2, Table: table.Table{Columns: []string{"human_id", "status", "owner", "name"}}}

	require.True(t, r.Matches(target, table.Record{"human_id": "APP-1", "status": "active", "owner": "", "name": "x"}))
	require.False(t, r.Matches(target, table.Record{"human_id": "APP-2", "status": "active", "owner": "bob", "name": "x"}))
	require.True(t, r.Matches(target, table.Record{"human_id": "APP-3", "status": "draft", "owner": "bob", "name": "Legacy CRM"}))

	empty := Rule{ID: "R0", Groups: []Group{{ID: "g1"}}}
	require.False(t, empty.Matches(target, table.Record{"human_id": "APP-1"}))
}
