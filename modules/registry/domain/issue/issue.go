package issue

import (
	"sort"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity maps free text to a severity; blank or unrecognised values are errors.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityWarning:
		return SeverityWarning
	case SeverityInfo:
		return SeverityInfo
	default:
		return SeverityError
	}
}

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	}
	return 9
}

type Type string

const (
	TypeMissingRequired    Type = "missing_required"
	TypeInvalidLookup      Type = "invalid_lookup"
	TypeInvalidValue       Type = "invalid_value"
	TypeConfigMissingField Type = "config_missing_field"
	TypeOrphan             Type = "orphan"
	TypeRule               Type = "rule"
)

// Issue is a single finding produced while computing the registry.
type Issue struct {
	ID           string      `json:"issue_id" db:"issue_id"`
	Severity     Severity    `json:"severity" db:"severity"`
	Level        level.Level `json:"level" db:"level"`
	HumanID      string      `json:"human_id" db:"human_id"`
	ParentRef    string      `json:"parent_ref" db:"parent_ref"`
	Type         Type        `json:"issue_type" db:"issue_type"`
	Message      string      `json:"message" db:"message"`
	SuggestedFix string      `json:"suggested_fix" db:"suggested_fix"`
}

type Summary struct {
	Errors      int  `json:"errors"`
	Warnings    int  `json:"warnings"`
	Infos       int  `json:"infos"`
	IssuesTotal int  `json:"issues_total"`
	Truncated   bool `json:"truncated,omitempty"`
}

func Summarize(issues []Issue) Summary {
	var s Summary
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		case SeverityInfo:
			s.Infos++
		}
	}
	s.IssuesTotal = len(issues)
	return s
}

// Sort orders issues by severity, level, type and id. The sort is stable.
func Sort(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.ID < b.ID
	})
}

// Truncate keeps at most limit issues. A non-positive limit keeps everything.
func Truncate(issues []Issue, limit int) ([]Issue, bool) {
	if limit <= 0 || len(issues) <= limit {
		return issues, false
	}
	return issues[:limit], true
}

// Filter keeps the issues accepted by keep, preserving order.
func Filter(issues []Issue, keep func(Issue) bool) []Issue {
	out := make([]Issue, 0, len(issues))
	for _, iss := range issues {
		if keep(iss) {
			out = append(out, iss)
		}
	}
	return out
}

// ForRecord returns the issues raised on humanID or naming it as parent,
// most severe first.
func ForRecord(issues []Issue, humanID string) []Issue {
	hid := level.Canon(humanID)
	out := Filter(issues, func(iss Issue) bool {
		return level.Canon(iss.HumanID) == hid || level.Canon(iss.ParentRef) == hid
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() < b.Severity.rank()
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.Type < b.Type
	})
	return out
}
