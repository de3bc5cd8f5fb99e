package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/lookup"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

var requiredColumns = map[level.Level][]string{
	level.C1: {level.FieldHumanID, level.FieldStatus, level.FieldName},
	level.C2: {"c1_human_id", level.FieldHumanID, level.FieldStatus, level.FieldName},
	level.C3: {"c2_human_id", level.FieldHumanID, level.FieldStatus, level.FieldName},
	level.C4: {"c3_human_id", level.FieldHumanID, level.FieldStatus, level.FieldName},
}

// RequiredColumns lists the columns every record of l must fill in.
func RequiredColumns(l level.Level) []string {
	return append([]string{}, requiredColumns[l]...)
}

func validateRequired(t table.Table, l level.Level, cols []string) []issue.Issue {
	var out []issue.Issue
	for _, col := range cols {
		if t.HasColumn(col) {
			continue
		}
		out = append(out, issue.Issue{
			ID:           fmt.Sprintf("%s-MISSINGCOL-%s", l, col),
			Severity:     issue.SeverityError,
			Level:        l,
			Type:         issue.TypeMissingRequired,
			Message:      fmt.Sprintf("Required column '%s' is missing in %s", col, l),
			SuggestedFix: fmt.Sprintf("Add column '%s' to the %s sheet", col, l.Sheet()),
		})
	}

	if !t.HasColumn(level.FieldHumanID) {
		return out
	}
	for i, r := range t.Rows {
		hid := strings.TrimSpace(r[level.FieldHumanID])
		key := hid
		if key == "" {
			key = "ROW" + strconv.Itoa(i)
		}
		for _, col := range cols {
			if !t.HasColumn(col) || strings.TrimSpace(r[col]) != "" {
				continue
			}
			out = append(out, issue.Issue{
				ID:           fmt.Sprintf("%s-REQ-%s-%s", l, key, col),
				Severity:     issue.SeverityError,
				Level:        l,
				HumanID:      hid,
				Type:         issue.TypeMissingRequired,
				Message:      fmt.Sprintf("Required field is empty: %s", col),
				SuggestedFix: fmt.Sprintf("Fill in '%s'", col),
			})
		}
	}
	return out
}

func validateUniqueHumanID(t table.Table, l level.Level) []issue.Issue {
	if !t.HasColumn(level.FieldHumanID) {
		return nil
	}
	seen := make(map[string]int)
	for _, r := range t.Rows {
		if hid := strings.TrimSpace(r[level.FieldHumanID]); hid != "" {
			seen[hid]++
		}
	}
	var dups []string
	for hid, n := range seen {
		if n > 1 {
			dups = append(dups, hid)
		}
	}
	sort.Strings(dups)

	out := make([]issue.Issue, 0, len(dups))
	for _, hid := range dups {
		out = append(out, issue.Issue{
			ID:           fmt.Sprintf("%s-DUP-%s", l, hid),
			Severity:     issue.SeverityError,
			Level:        l,
			HumanID:      hid,
			Type:         issue.TypeMissingRequired,
			Message:      "Duplicate human_id within the level",
			SuggestedFix: "Make human_id unique in this sheet",
		})
	}
	return out
}

var orphanHints = map[level.Level]struct{ message, fix string }{
	level.C2: {"Application without a project (C1) or the C1 does not exist", "Set c1_human_id to an existing PRJ"},
	level.C3: {"Component without an application (C2) or the C2 does not exist", "Set c2_human_id to an existing APP"},
	level.C4: {"Runtime without a component (C3) or the C3 does not exist", "Set c3_human_id to an existing CMP"},
}

// validateOrphans flags every C2..C4 record whose parent reference is blank or unresolvable.
func validateOrphans(levels map[level.Level]table.Table) []issue.Issue {
	var out []issue.Issue
	for _, l := range []level.Level{level.C2, level.C3, level.C4} {
		t := levels[l]
		parentCol := l.ParentColumn()
		if !t.HasColumns(parentCol, level.FieldHumanID) {
			continue
		}
		pl, _ := l.Parent()
		parents := idSet(levels[pl])
		for _, r := range t.Rows {
			hid := strings.TrimSpace(r[level.FieldHumanID])
			parent := strings.TrimSpace(r[parentCol])
			if _, ok := parents[parent]; parent != "" && ok {
				continue
			}
			out = append(out, issue.Issue{
				ID:           fmt.Sprintf("%s-ORPHAN-%s", l, hid),
				Severity:     issue.SeverityError,
				Level:        l,
				HumanID:      hid,
				ParentRef:    parent,
				Type:         issue.TypeOrphan,
				Message:      orphanHints[l].message,
				SuggestedFix: orphanHints[l].fix,
			})
		}
	}
	return out
}

func validateLookups(t table.Table, l level.Level, cfg lookup.Config) []issue.Issue {
	if t.IsEmpty() || !t.HasColumn(level.FieldHumanID) {
		return nil
	}
	var out []issue.Issue
	for _, name := range cfg.NamesFor(l) {
		if !t.HasColumn(name) {
			continue
		}
		entry, _ := cfg.Get(name)
		if len(entry.Values) == 0 {
			continue
		}
		allowed := strings.Join(entry.SortedValues(), ", ")
		for _, r := range t.Rows {
			hid := strings.TrimSpace(r[level.FieldHumanID])
			for _, tok := range lookup.Tokenize(r[name]) {
				if entry.Allowed(tok) {
					continue
				}
				out = append(out, issue.Issue{
					ID:           fmt.Sprintf("%s-LOOKUP-%s-%s-%s", l, hid, name, tok),
					Severity:     issue.SeverityError,
					Level:        l,
					HumanID:      hid,
					Type:         issue.TypeInvalidLookup,
					Message:      fmt.Sprintf("Invalid value in %s: '%s' (lookup %s)", name, tok, name),
					SuggestedFix: fmt.Sprintf("Use one of: %s", allowed),
				})
			}
		}
	}
	return out
}

// validateLookupFields flags level-scoped lookups whose column is missing on that level.
// ALL-scoped lookups are not checked.
func validateLookupFields(levels map[level.Level]table.Table, cfg lookup.Config) []issue.Issue {
	var out []issue.Issue
	for _, name := range cfg.Names() {
		entry, _ := cfg.Get(name)
		for _, l := range entry.SortedLevels() {
			if l == level.All {
				continue
			}
			t, ok := levels[l]
			if !ok || t.HasColumn(name) {
				continue
			}
			out = append(out, issue.Issue{
				ID:           fmt.Sprintf("%s-LOOKUP-MISSINGFIELD-%s", l, name),
				Severity:     issue.SeverityWarning,
				Level:        l,
				Type:         issue.TypeConfigMissingField,
				Message:      fmt.Sprintf("LOOKUPS defines '%s' for %s, but the column does not exist in the sheet.", name, l),
				SuggestedFix: withColumnHint(fmt.Sprintf("Create column '%s' in %s or adjust LOOKUPS.", name, l), name, t.Columns),
			})
		}
	}
	return out
}

// validateRuleFields flags field conditions that reference a column missing
// from the rule's (non-empty) target level.
func validateRuleFields(rules table.Table, levels map[level.Level]table.Table) []issue.Issue {
	rows, ok := rule.Rows(rules)
	if !ok {
		return nil
	}
	var out []issue.Issue
	seen := make(map[string]struct{})
	for _, r := range rows {
		if r.Level == "" || r.RuleID == "" || r.WhenField == "" || r.WhenField == rule.RelField {
			continue
		}
		t, ok := levels[r.Level]
		if !ok || t.IsEmpty() || t.HasColumn(r.WhenField) {
			continue
		}
		id := fmt.Sprintf("%s-RULE-MISSINGFIELD-%s-%s", r.Level, r.RuleID, r.WhenField)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, issue.Issue{
			ID:           id,
			Severity:     issue.SeverityWarning,
			Level:        r.Level,
			Type:         issue.TypeConfigMissingField,
			Message:      fmt.Sprintf("RULES (%s) references field '%s' in %s, but the column does not exist.", r.RuleID, r.WhenField, r.Level),
			SuggestedFix: withColumnHint(fmt.Sprintf("Create column '%s' in %s or adjust rule %s.", r.WhenField, r.Level, r.RuleID), r.WhenField, t.Columns),
		})
	}
	return out
}

// withColumnHint appends a "did you mean" note when an existing column looks
// like a misspelling of name.
func withColumnHint(fix, name string, columns []string) string {
	if best := closestColumn(name, columns); best != "" {
		return fmt.Sprintf("%s Did you mean '%s'?", fix, best)
	}
	return fix
}

func closestColumn(name string, columns []string) string {
	best, bestDist := "", -1
	for _, col := range columns {
		dist := fuzzy.LevenshteinDistance(strings.ToLower(name), strings.ToLower(col))
		near := dist <= 2 ||
			(fuzzy.MatchNormalizedFold(name, col) && len(col)-len(name) <= 3) ||
			(fuzzy.MatchNormalizedFold(col, name) && len(name)-len(col) <= 3)
		if !near {
			continue
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = col, dist
		}
	}
	return best
}

func idSet(t table.Table) map[string]struct{} {
	out := make(map[string]struct{}, len(t.Rows))
	if !t.HasColumn(level.FieldHumanID) {
		return out
	}
	for _, r := range t.Rows {
		out[strings.TrimSpace(r[level.FieldHumanID])] = struct{}{}
	}
	return out
}
