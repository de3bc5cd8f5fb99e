package services

import (
	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/lookup"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// Result is everything one computation produces.
type Result struct {
	View      table.Table                 `json:"view"`
	Issues    []issue.Issue               `json:"issues"`
	Levels    map[level.Level]table.Table `json:"levels"`
	Relations *RelationIndex              `json:"-"`
	Lookups   table.Table                 `json:"-"`
	Meta      map[string]string           `json:"meta,omitempty"`
}

// Compute runs the whole pipeline over the registry tables. It is pure: the
// same tables always give the same result, and the input is never modified.
// The only error is ErrMissingTable.
func Compute(tables table.Set) (*Result, error) {
	snap, err := Normalize(tables)
	if err != nil {
		return nil, err
	}
	levels := snap.Levels
	lookups := lookup.Parse(snap.Lookups)

	issues := []issue.Issue{}
	for _, l := range level.Levels() {
		issues = append(issues, validateRequired(levels[l], l, requiredColumns[l])...)
	}
	for _, l := range level.Levels() {
		issues = append(issues, validateUniqueHumanID(levels[l], l)...)
	}
	issues = append(issues, validateOrphans(levels)...)

	issues = append(issues, validateLookupFields(levels, lookups)...)
	issues = append(issues, validateRuleFields(snap.Rules, levels)...)
	for _, l := range level.Levels() {
		issues = append(issues, validateLookups(levels[l], l, lookups)...)
	}

	derived, vulnIssues := deriveVulnerabilities(levels)
	issues = append(issues, vulnIssues...)

	rel := BuildRelationIndex(derived[level.C1], derived[level.C2], derived[level.C3], derived[level.C4])
	issues = append(issues, evaluateRules(snap.Rules, derived, rel)...)

	view := buildView(derived[level.C1], derived[level.C2], derived[level.C3], derived[level.C4])

	return &Result{
		View:      view,
		Issues:    issues,
		Levels:    derived,
		Relations: rel,
		Lookups:   snap.Lookups,
		Meta:      MetaValues(snap.Meta),
	}, nil
}
