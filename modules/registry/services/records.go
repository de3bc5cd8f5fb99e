package services

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/lookup"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

type ChildRef struct {
	Level   level.Level `json:"level"`
	Sheet   string      `json:"sheet"`
	HumanID string      `json:"human_id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
}

// RecordView is a record with everything the presentation layer shows next to it.
type RecordView struct {
	Level       level.Level         `json:"level"`
	Sheet       string              `json:"sheet"`
	HumanID     string              `json:"human_id"`
	ParentRef   string              `json:"parent_ref,omitempty"`
	Columns     []string            `json:"columns"`
	Record      table.Record        `json:"record"`
	Children    []ChildRef          `json:"children"`
	Descendants map[level.Level]int `json:"descendants"`
	Issues      []issue.Issue       `json:"issues"`
}

// Record looks a record up by human_id in the derived level tables.
func (s *RegistryService) Record(ctx context.Context, humanID string) (*RecordView, error) {
	meta, ok := level.Detect(humanID)
	if !ok {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_PREFIX", "human_id '"+humanID+"' has an unsupported prefix", nil)
	}
	run, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	t := run.Levels[meta.Level]
	rec, ok := t.Find(level.FieldHumanID, humanID)
	if !ok {
		return nil, newServiceError(http.StatusNotFound, "REGISTRY_NOT_FOUND", "record '"+level.Canon(humanID)+"' not found in "+meta.Sheet, nil)
	}
	view := &RecordView{
		Level:   meta.Level,
		Sheet:   meta.Sheet,
		HumanID: strings.TrimSpace(rec[level.FieldHumanID]),
		Columns: append([]string{}, t.Columns...),
		Record:  rec.Clone(),
		Issues:  issue.ForRecord(run.Issues, humanID),
	}
	view.Children = childrenOf(run.Levels, meta.Level, view.HumanID)
	view.Descendants = descendantCounts(run.Relations, meta.Level, view.HumanID)
	if meta.ParentColumn != "" {
		view.ParentRef = strings.TrimSpace(rec[meta.ParentColumn])
	}
	return view, nil
}

// Children lists the immediate children of a record, sorted by human_id.
func (s *RegistryService) Children(ctx context.Context, humanID string) ([]ChildRef, error) {
	meta, ok := level.Detect(humanID)
	if !ok {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_PREFIX", "human_id '"+humanID+"' has an unsupported prefix", nil)
	}
	run, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(humanID)
	if rec, ok := run.Levels[meta.Level].Find(level.FieldHumanID, humanID); ok {
		id = strings.TrimSpace(rec[level.FieldHumanID])
	}
	return childrenOf(run.Levels, meta.Level, id), nil
}

// Level returns the derived table of one level.
func (s *RegistryService) Level(ctx context.Context, l level.Level) (table.Table, error) {
	if _, ok := l.Meta(); !ok {
		return table.Table{}, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_LEVEL", "unknown level '"+string(l)+"' (expected C1|C2|C3|C4)", nil)
	}
	run, err := s.Current(ctx)
	if err != nil {
		return table.Table{}, err
	}
	return run.Levels[l], nil
}

// LookupOptions returns dropdown choices for the fields of a level.
func (s *RegistryService) LookupOptions(ctx context.Context, l level.Level) (map[string][]lookup.Option, error) {
	if _, ok := l.Meta(); !ok {
		return nil, newServiceError(http.StatusBadRequest, "REGISTRY_UNKNOWN_LEVEL", "unknown level '"+string(l)+"' (expected C1|C2|C3|C4)", nil)
	}
	run, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return lookup.Options(run.Lookups, l), nil
}

// childrenOf lists the rows of the level below l whose parent column is
// exactly humanID after trimming, the same link the relation index follows.
func childrenOf(levels map[level.Level]table.Table, l level.Level, humanID string) []ChildRef {
	out := []ChildRef{}
	child, ok := l.Child()
	if !ok {
		return out
	}
	t := levels[child]
	if t.IsEmpty() || !t.HasColumns(child.ParentColumn(), level.FieldHumanID) {
		return out
	}
	for _, r := range t.Rows {
		if strings.TrimSpace(r[child.ParentColumn()]) != humanID {
			continue
		}
		out = append(out, ChildRef{
			Level:   child,
			Sheet:   child.Sheet(),
			HumanID: r[level.FieldHumanID],
			Name:    r[level.FieldName],
			Status:  r[level.FieldStatus],
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return level.Canon(out[i].HumanID) < level.Canon(out[j].HumanID)
	})
	return out
}

// descendantCounts reads the relation index for every level below l.
// C3 under a C1 is the sum of C3_by_C2 over the C1's applications.
func descendantCounts(rel *RelationIndex, l level.Level, humanID string) map[level.Level]int {
	counts := map[level.Level]int{level.C2: 0, level.C3: 0, level.C4: 0}
	if rel == nil {
		return counts
	}
	for _, desc := range []level.Level{level.C2, level.C3, level.C4} {
		if n, ok := rel.DescendantCount(l, desc, humanID); ok {
			counts[desc] = n
		}
	}
	if l == level.C1 {
		for c2, parent := range rel.Parent[level.C2] {
			if parent == humanID {
				counts[level.C3] += rel.Counts[CountC3ByC2][c2]
			}
		}
	}
	return counts
}
