package rule

import (
	"sort"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const (
	ColumnRuleID       = "rule_id"
	ColumnLevel        = "level"
	ColumnGroupID      = "group_id"
	ColumnLogic        = "logic"
	ColumnWhenField    = "when_field"
	ColumnOp           = "op"
	ColumnValue        = "value"
	ColumnSeverity     = "severity"
	ColumnMessage      = "message"
	ColumnSuggestedFix = "suggested_fix"
)

// RelField marks a condition row as a hierarchy predicate instead of a field comparison.
const RelField = "_rel"

// RequiredColumns must all be present for the RULES table to be evaluated.
var RequiredColumns = []string{
	ColumnRuleID, ColumnLevel, ColumnGroupID, ColumnLogic, ColumnWhenField,
	ColumnOp, ColumnValue, ColumnSeverity, ColumnMessage, ColumnSuggestedFix,
}

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

func parseLogic(s string) Logic {
	if strings.ToUpper(strings.TrimSpace(s)) == string(LogicOr) {
		return LogicOr
	}
	return LogicAnd
}

// Group is a set of conditions combined by Logic.
type Group struct {
	ID         string
	Logic      Logic
	Conditions []Condition
}

// Rule is every row sharing a rule_id. Its groups are OR'ed.
type Rule struct {
	ID           string
	Level        level.Level
	Severity     issue.Severity
	Message      string
	SuggestedFix string
	Groups       []Group
}

// Row is one raw RULES row after trimming.
type Row struct {
	RuleID    string
	Level     level.Level
	GroupID   string
	Logic     string
	WhenField string
	Op        string
	Value     string
	Severity  string
	Message   string
	Fix       string
}

// Rows extracts the trimmed RULES rows. ok is false when any required column is missing.
func Rows(t table.Table) ([]Row, bool) {
	if !t.HasColumns(RequiredColumns...) {
		return nil, false
	}
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, Row{
			RuleID:    strings.TrimSpace(r[ColumnRuleID]),
			Level:     level.Level(level.Canon(r[ColumnLevel])),
			GroupID:   strings.TrimSpace(r[ColumnGroupID]),
			Logic:     strings.TrimSpace(r[ColumnLogic]),
			WhenField: strings.TrimSpace(r[ColumnWhenField]),
			Op:        strings.ToLower(strings.TrimSpace(r[ColumnOp])),
			Value:     strings.TrimSpace(r[ColumnValue]),
			Severity:  strings.TrimSpace(r[ColumnSeverity]),
			Message:   r[ColumnMessage],
			Fix:       r[ColumnSuggestedFix],
		})
	}
	return out, true
}

// Parse builds rules ordered by rule_id, groups ordered by group_id. Level,
// severity, message and fix come from the first row of each rule; a group's
// logic comes from its first row. Rows without a rule_id are ignored.
func Parse(t table.Table) ([]Rule, bool) {
	rows, ok := Rows(t)
	if !ok {
		return nil, false
	}

	byRule := make(map[string][]Row)
	var ids []string
	for _, r := range rows {
		if r.RuleID == "" {
			continue
		}
		if _, seen := byRule[r.RuleID]; !seen {
			ids = append(ids, r.RuleID)
		}
		byRule[r.RuleID] = append(byRule[r.RuleID], r)
	}
	sort.Strings(ids)

	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		rr := byRule[id]
		first := rr[0]
		rule := Rule{
			ID:           id,
			Level:        first.Level,
			Severity:     issue.ParseSeverity(first.Severity),
			Message:      first.Message,
			SuggestedFix: first.Fix,
		}

		byGroup := make(map[string][]Row)
		var gids []string
		for _, r := range rr {
			if _, seen := byGroup[r.GroupID]; !seen {
				gids = append(gids, r.GroupID)
			}
			byGroup[r.GroupID] = append(byGroup[r.GroupID], r)
		}
		sort.Strings(gids)
		for _, gid := range gids {
			g := Group{ID: gid, Logic: parseLogic(byGroup[gid][0].Logic)}
			for _, r := range byGroup[gid] {
				g.Conditions = append(g.Conditions, ParseCondition(r.WhenField, r.Op, r.Value))
			}
			rule.Groups = append(rule.Groups, g)
		}
		out = append(out, rule)
	}
	return out, true
}

// Matches reports whether any group of the rule holds for rec. Groups
// without conditions never match.
func (r Rule) Matches(target Target, rec table.Record) bool {
	for _, g := range r.Groups {
		if len(g.Conditions) == 0 {
			continue
		}
		if g.Matches(target, rec) {
			return true
		}
	}
	return false
}

func (g Group) Matches(target Target, rec table.Record) bool {
	if g.Logic == LogicOr {
		for _, c := range g.Conditions {
			if Evaluate(c, target, rec) {
				return true
			}
		}
		return false
	}
	for _, c := range g.Conditions {
		if !Evaluate(c, target, rec) {
			return false
		}
	}
	return true
}
