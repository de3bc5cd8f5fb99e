package rule

import (
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpEmpty    Op = "empty"
	OpNotEmpty Op = "not_empty"
	OpContains Op = "contains"
	OpIn       Op = "in"
	OpNotIn    Op = "not_in"

	OpMissingParent Op = "missing_parent"
	OpNoDescendant  Op = "no_descendant"
)

// Condition is one of FieldCompare, RelMissingParent, RelNoDescendant or
// Unsupported.
type Condition interface {
	condition()
}

type FieldCompare struct {
	Field string
	Op    Op
	Value string
}

type RelMissingParent struct {
	Parent level.Level
}

type RelNoDescendant struct {
	Descendant level.Level
}

// Unsupported is a relational row with an unknown op. It never holds.
type Unsupported struct {
	Op Op
}

func (FieldCompare) condition()     {}
func (RelMissingParent) condition() {}
func (RelNoDescendant) condition()  {}
func (Unsupported) condition()      {}

// ParseCondition turns one RULES row into a condition.
func ParseCondition(whenField, op, value string) Condition {
	whenField = strings.TrimSpace(whenField)
	o := Op(strings.ToLower(strings.TrimSpace(op)))
	value = strings.TrimSpace(value)
	if whenField != RelField {
		return FieldCompare{Field: whenField, Op: o, Value: value}
	}
	switch o {
	case OpMissingParent:
		return RelMissingParent{Parent: level.Level(level.Canon(value))}
	case OpNoDescendant:
		return RelNoDescendant{Descendant: level.Level(level.Canon(value))}
	}
	return Unsupported{Op: o}
}

// Relations answers the hierarchy questions relational conditions ask.
type Relations interface {
	ParentOf(l level.Level, humanID string) string
	Exists(l level.Level, humanID string) bool
	// DescendantCount reports how many desc-level records sit under humanID.
	// ok is false for level pairs that are not tracked.
	DescendantCount(l, desc level.Level, humanID string) (n int, ok bool)
}

// Target is the level table a rule is evaluated against.
type Target struct {
	Level     level.Level
	Table     table.Table
	Relations Relations
}

// Evaluate is the single dispatch point for every condition kind.
func Evaluate(c Condition, target Target, rec table.Record) bool {
	switch c := c.(type) {
	case FieldCompare:
		return evalField(c, target.Table, rec)
	case RelMissingParent:
		if target.Relations == nil {
			return false
		}
		hid := strings.TrimSpace(rec[level.FieldHumanID])
		parent := strings.TrimSpace(target.Relations.ParentOf(target.Level, hid))
		return parent == "" || !target.Relations.Exists(c.Parent, parent)
	case RelNoDescendant:
		if target.Relations == nil {
			return false
		}
		hid := strings.TrimSpace(rec[level.FieldHumanID])
		n, ok := target.Relations.DescendantCount(target.Level, c.Descendant, hid)
		return ok && n == 0
	default:
		return false
	}
}

func evalField(c FieldCompare, t table.Table, rec table.Record) bool {
	if !t.HasColumn(c.Field) {
		return false
	}
	v := strings.TrimSpace(rec[c.Field])
	switch c.Op {
	case OpEq:
		return v == c.Value
	case OpNe:
		return v != c.Value
	case OpEmpty:
		return v == ""
	case OpNotEmpty:
		return v != ""
	case OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	case OpIn:
		_, ok := splitSet(c.Value)[v]
		return ok
	case OpNotIn:
		_, ok := splitSet(c.Value)[v]
		return !ok
	}
	return false
}

func splitSet(v string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}
