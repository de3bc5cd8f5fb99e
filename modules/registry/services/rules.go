package services

import (
	"fmt"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// evaluateRules raises one issue per (rule, record) that any rule group matches.
// Rules targeting an empty level, or a level without human_id, are skipped.
func evaluateRules(rules table.Table, levels map[level.Level]table.Table, rel rule.Relations) []issue.Issue {
	parsed, ok := rule.Parse(rules)
	if !ok {
		return nil
	}
	var out []issue.Issue
	for _, r := range parsed {
		t, ok := levels[r.Level]
		if !ok || t.IsEmpty() || !t.HasColumn(level.FieldHumanID) {
			continue
		}
		target := rule.Target{Level: r.Level, Table: t, Relations: rel}
		for _, rec := range t.Rows {
			hid := strings.TrimSpace(rec[level.FieldHumanID])
			if hid == "" || !r.Matches(target, rec) {
				continue
			}
			out = append(out, issue.Issue{
				ID:           fmt.Sprintf("RULE-%s-%s", r.ID, hid),
				Severity:     r.Severity,
				Level:        r.Level,
				HumanID:      hid,
				Type:         issue.TypeRule,
				Message:      r.Message,
				SuggestedFix: r.SuggestedFix,
			})
		}
	}
	return out
}
