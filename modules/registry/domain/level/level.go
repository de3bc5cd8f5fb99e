package level

import (
	"sort"
	"strings"
)

// Level identifies one tier of the registry hierarchy.
type Level string

const (
	C1  Level = "C1"
	C2  Level = "C2"
	C3  Level = "C3"
	C4  Level = "C4"
	All Level = "ALL"
)

const (
	SheetMeta    = "META"
	SheetLookups = "LOOKUPS"
	SheetRules   = "RULES"
	SheetC1      = "C1_Proyectos"
	SheetC2      = "C2_Aplicaciones"
	SheetC3      = "C3_Componentes"
	SheetC4      = "C4_Runtime"
)

const (
	FieldHumanID = "human_id"
	FieldStatus  = "status"
	FieldName    = "name"
)

type Meta struct {
	Level        Level  `json:"level"`
	Prefix       string `json:"prefix"`
	Sheet        string `json:"sheet"`
	ParentColumn string `json:"parent_col,omitempty"`
}

var metas = []Meta{
	{Level: C1, Prefix: "PRJ-", Sheet: SheetC1},
	{Level: C2, Prefix: "APP-", Sheet: SheetC2, ParentColumn: "c1_human_id"},
	{Level: C3, Prefix: "CMP-", Sheet: SheetC3, ParentColumn: "c2_human_id"},
	{Level: C4, Prefix: "RUN-", Sheet: SheetC4, ParentColumn: "c3_human_id"},
}

// Levels returns C1..C4, root first.
func Levels() []Level {
	return []Level{C1, C2, C3, C4}
}

// Sheets lists every sheet a registry workbook is expected to carry.
func Sheets() []string {
	return []string{SheetMeta, SheetLookups, SheetRules, SheetC1, SheetC2, SheetC3, SheetC4}
}

// Parse accepts a level code in any case and surrounding whitespace.
func Parse(s string) (Level, bool) {
	l := Level(Canon(s))
	if _, ok := l.Meta(); ok {
		return l, true
	}
	return l, false
}

func (l Level) String() string { return string(l) }

func (l Level) Meta() (Meta, bool) {
	for _, m := range metas {
		if m.Level == l {
			return m, true
		}
	}
	return Meta{}, false
}

func (l Level) Sheet() string {
	m, _ := l.Meta()
	return m.Sheet
}

func (l Level) ParentColumn() string {
	m, _ := l.Meta()
	return m.ParentColumn
}

func (l Level) Parent() (Level, bool) {
	switch l {
	case C2:
		return C1, true
	case C3:
		return C2, true
	case C4:
		return C3, true
	}
	return "", false
}

func (l Level) Child() (Level, bool) {
	switch l {
	case C1:
		return C2, true
	case C2:
		return C3, true
	case C3:
		return C4, true
	}
	return "", false
}

// Prefix returns the column prefix used for this level in the joined view.
func (l Level) Prefix() string {
	return strings.ToLower(string(l)) + "__"
}

// Detect resolves the level of a human_id from its prefix.
func Detect(humanID string) (Meta, bool) {
	hid := Canon(humanID)
	for _, m := range metas {
		if strings.HasPrefix(hid, m.Prefix) {
			return m, true
		}
	}
	return Meta{}, false
}

// BySheet resolves the level stored in the given sheet.
func BySheet(sheet string) (Meta, bool) {
	for _, m := range metas {
		if m.Sheet == sheet {
			return m, true
		}
	}
	return Meta{}, false
}

// Canon is the comparison form of identifiers: trimmed and upper-cased.
func Canon(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeKey folds a header or field name into its snake_case lookup form.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

// Sort orders levels as C1..C4 with ALL (and anything unknown) last.
func Sort(levels []Level) {
	rank := func(l Level) int {
		for i, known := range Levels() {
			if l == known {
				return i
			}
		}
		return len(metas)
	}
	sort.SliceStable(levels, func(i, j int) bool {
		ri, rj := rank(levels[i]), rank(levels[j])
		if ri != rj {
			return ri < rj
		}
		return levels[i] < levels[j]
	})
}
