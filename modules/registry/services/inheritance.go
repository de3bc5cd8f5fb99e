package services

import (
	"fmt"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const VulnField = "vulnerabilities_detected"

const (
	VulnYes     = "yes"
	VulnNo      = "no"
	VulnUnknown = "unknown"
)

var vulnAliases = map[string]string{
	"y":     VulnYes,
	"true":  VulnYes,
	"1":     VulnYes,
	"n":     VulnNo,
	"false": VulnNo,
	"0":     VulnNo,
	"unk":   VulnUnknown,
	"na":    VulnUnknown,
	"n/a":   VulnUnknown,
}

// CanonVuln maps a raw cell onto yes/no/unknown. Blank is unknown; ok is
// false for values that are not recognised.
func CanonVuln(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return VulnUnknown, true
	}
	if alias, ok := vulnAliases[s]; ok {
		s = alias
	}
	switch s {
	case VulnYes, VulnNo, VulnUnknown:
		return s, true
	}
	return VulnUnknown, false
}

// DeriveVuln aggregates descendant values: any yes wins, then any unknown,
// then no. Without descendants the result is unknown.
func DeriveVuln(values []string) string {
	seen := 0
	unknown := false
	for _, v := range values {
		switch v {
		case "":
			continue
		case VulnYes:
			return VulnYes
		case VulnUnknown:
			unknown = true
		}
		seen++
	}
	if unknown || seen == 0 {
		return VulnUnknown
	}
	return VulnNo
}

// deriveVulnerabilities normalizes the factual C3/C4 values and derives C2
// and C1 bottom-up. A blank C3 cell means "inherit from its runtimes" and is
// filled from the C4 children before C2 is derived. Levels without the
// column are left untouched.
func deriveVulnerabilities(levels map[level.Level]table.Table) (map[level.Level]table.Table, []issue.Issue) {
	present := false
	for _, l := range level.Levels() {
		if t := levels[l]; !t.IsEmpty() && t.HasColumn(VulnField) {
			present = true
			break
		}
	}
	if !present {
		return levels, []issue.Issue{{
			ID:           "CFG-VULN-MISSINGFIELD",
			Severity:     issue.SeverityWarning,
			Level:        level.All,
			Type:         issue.TypeConfigMissingField,
			Message:      fmt.Sprintf("'%s' is supported but the column does not exist in any sheet; derivation skipped.", VulnField),
			SuggestedFix: fmt.Sprintf("Create column '%s' in C3/C4 (and optionally C2/C1 to inherit it) or stop using it.", VulnField),
		}}
	}

	out := make(map[level.Level]table.Table, len(levels))
	for l, t := range levels {
		out[l] = t.Clone()
	}
	var issues []issue.Issue

	c1, c2, c3, c4 := out[level.C1], out[level.C2], out[level.C3], out[level.C4]

	c3Blank := make([]bool, len(c3.Rows))
	for i, r := range c3.Rows {
		c3Blank[i] = strings.TrimSpace(r[VulnField]) == ""
	}
	for _, l := range []level.Level{level.C3, level.C4} {
		t := out[l]
		if !t.HasColumn(VulnField) {
			continue
		}
		for _, r := range t.Rows {
			v, ok := CanonVuln(r[VulnField])
			if !ok {
				hid := strings.TrimSpace(r[level.FieldHumanID])
				issues = append(issues, issue.Issue{
					ID:           fmt.Sprintf("%s-VULN-INVALID-%s", l, hid),
					Severity:     issue.SeverityWarning,
					Level:        l,
					HumanID:      hid,
					Type:         issue.TypeInvalidValue,
					Message:      fmt.Sprintf("Invalid value in %s: '%s'", VulnField, strings.TrimSpace(r[VulnField])),
					SuggestedFix: "Use one of: yes, no, unknown",
				})
			}
			r[VulnField] = v
		}
	}

	// blank components inherit from their runtimes
	if c3.HasColumn(VulnField) && c4.HasColumn(VulnField) {
		byC3 := childValues(c4, level.C4.ParentColumn())
		for i, r := range c3.Rows {
			if c3Blank[i] {
				r[VulnField] = DeriveVuln(byC3[strings.TrimSpace(r[level.FieldHumanID])])
			}
		}
	}

	if c2.HasColumn(VulnField) {
		var byC2 map[string][]string
		if c3.HasColumn(VulnField) {
			byC2 = childValues(c3, level.C3.ParentColumn())
		}
		for _, r := range c2.Rows {
			r[VulnField] = DeriveVuln(byC2[strings.TrimSpace(r[level.FieldHumanID])])
		}
	}

	if c1.HasColumn(VulnField) && c2.HasColumn(VulnField) && c2.HasColumn(level.C2.ParentColumn()) {
		byC1 := childValues(c2, level.C2.ParentColumn())
		for _, r := range c1.Rows {
			r[VulnField] = DeriveVuln(byC1[strings.TrimSpace(r[level.FieldHumanID])])
		}
	}

	return out, issues
}

// childValues groups the vulnerability values of t by their parent reference.
func childValues(t table.Table, parentCol string) map[string][]string {
	out := make(map[string][]string)
	if !t.HasColumns(level.FieldHumanID, parentCol) {
		return out
	}
	for _, r := range t.Rows {
		p := strings.TrimSpace(r[parentCol])
		if p == "" {
			continue
		}
		out[p] = append(out[p], strings.TrimSpace(r[VulnField]))
	}
	return out
}
