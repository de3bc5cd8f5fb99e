package services

import (
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const (
	CountC2ByC1 = "C2_by_C1"
	CountC3ByC2 = "C3_by_C2"
	CountC4ByC3 = "C4_by_C3"
	CountC4ByC2 = "C4_by_C2"
	CountC4ByC1 = "C4_by_C1"
)

// RelationIndex holds parent pointers and descendant counts for one computation.
type RelationIndex struct {
	IDs    map[level.Level]map[string]struct{} `json:"-"`
	Parent map[level.Level]map[string]string   `json:"parent"`
	Counts map[string]map[string]int           `json:"counts"`
}

// BuildRelationIndex derives the index from the four level tables.
func BuildRelationIndex(c1, c2, c3, c4 table.Table) *RelationIndex {
	idx := &RelationIndex{
		IDs: map[level.Level]map[string]struct{}{
			level.C1: idSet(c1),
			level.C2: idSet(c2),
			level.C3: idSet(c3),
		},
		Parent: map[level.Level]map[string]string{
			level.C2: parentMap(c2, level.C2.ParentColumn()),
			level.C3: parentMap(c3, level.C3.ParentColumn()),
			level.C4: parentMap(c4, level.C4.ParentColumn()),
		},
		Counts: map[string]map[string]int{
			CountC2ByC1: countBy(c2, level.C2.ParentColumn()),
			CountC3ByC2: countBy(c3, level.C3.ParentColumn()),
			CountC4ByC3: countBy(c4, level.C4.ParentColumn()),
			CountC4ByC2: {},
			CountC4ByC1: {},
		},
	}

	c3Parent, c2Parent := idx.Parent[level.C3], idx.Parent[level.C2]
	if c4.IsEmpty() || !c4.HasColumn(level.C4.ParentColumn()) || len(c3Parent) == 0 || len(c2Parent) == 0 {
		return idx
	}
	for _, r := range c4.Rows {
		c3ID := strings.TrimSpace(r[level.C4.ParentColumn()])
		c2ID := strings.TrimSpace(c3Parent[c3ID])
		c1ID := strings.TrimSpace(c2Parent[c2ID])
		if c2ID != "" {
			idx.Counts[CountC4ByC2][c2ID]++
		}
		if c1ID != "" {
			idx.Counts[CountC4ByC1][c1ID]++
		}
	}
	return idx
}

func (idx *RelationIndex) ParentOf(l level.Level, humanID string) string {
	return idx.Parent[l][humanID]
}

func (idx *RelationIndex) Exists(l level.Level, humanID string) bool {
	_, ok := idx.IDs[l][humanID]
	return ok
}

func (idx *RelationIndex) DescendantCount(l, desc level.Level, humanID string) (int, bool) {
	key, ok := countKey(l, desc)
	if !ok {
		return 0, false
	}
	return idx.Counts[key][humanID], true
}

func countKey(l, desc level.Level) (string, bool) {
	switch {
	case l == level.C1 && desc == level.C2:
		return CountC2ByC1, true
	case l == level.C2 && desc == level.C3:
		return CountC3ByC2, true
	case l == level.C3 && desc == level.C4:
		return CountC4ByC3, true
	case l == level.C2 && desc == level.C4:
		return CountC4ByC2, true
	case l == level.C1 && desc == level.C4:
		return CountC4ByC1, true
	}
	return "", false
}

func parentMap(t table.Table, parentCol string) map[string]string {
	out := make(map[string]string)
	if !t.HasColumns(level.FieldHumanID, parentCol) {
		return out
	}
	for _, r := range t.Rows {
		out[strings.TrimSpace(r[level.FieldHumanID])] = strings.TrimSpace(r[parentCol])
	}
	return out
}

func countBy(t table.Table, col string) map[string]int {
	out := make(map[string]int)
	if !t.HasColumn(col) {
		return out
	}
	for _, r := range t.Rows {
		out[strings.TrimSpace(r[col])]++
	}
	return out
}
