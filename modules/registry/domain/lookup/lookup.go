package lookup

import (
	"sort"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const (
	ColumnName        = "lookup_name"
	ColumnValue       = "lookup_value"
	ColumnLevel       = "level"
	ColumnDescription = "description"
)

// Entry is the permitted value set of one lookup and the levels it is scoped to.
type Entry struct {
	Name   string
	Values map[string]struct{}
	Levels map[level.Level]struct{}
}

func (e Entry) Allowed(v string) bool {
	_, ok := e.Values[v]
	return ok
}

func (e Entry) SortedValues() []string {
	out := make([]string, 0, len(e.Values))
	for v := range e.Values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (e Entry) SortedLevels() []level.Level {
	out := make([]level.Level, 0, len(e.Levels))
	for l := range e.Levels {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e Entry) ScopedTo(l level.Level) bool {
	if _, ok := e.Levels[level.All]; ok {
		return true
	}
	_, ok := e.Levels[l]
	return ok
}

// Config holds lookups keyed by name, remembering first-seen order.
type Config struct {
	order   []string
	entries map[string]*Entry
}

func (c Config) Len() int { return len(c.order) }

func (c Config) Names() []string { return append([]string{}, c.order...) }

func (c Config) Get(name string) (Entry, bool) {
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// NamesFor returns, sorted, the lookups scoped to ALL or to l.
func (c Config) NamesFor(l level.Level) []string {
	var out []string
	for _, name := range c.order {
		if c.entries[name].ScopedTo(l) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Config) add(name, value string, lvl level.Level) {
	if c.entries == nil {
		c.entries = make(map[string]*Entry)
	}
	e, ok := c.entries[name]
	if !ok {
		e = &Entry{Name: name, Values: map[string]struct{}{}, Levels: map[level.Level]struct{}{}}
		c.entries[name] = e
		c.order = append(c.order, name)
	}
	e.Values[value] = struct{}{}
	e.Levels[lvl] = struct{}{}
}

// Parse groups LOOKUPS rows by lookup_name. A table without lookup_name or
// lookup_value yields an empty config; a blank level means ALL.
func Parse(t table.Table) Config {
	var c Config
	if t.IsEmpty() || !t.HasColumns(ColumnName, ColumnValue) {
		return c
	}
	for _, r := range t.Rows {
		name := strings.TrimSpace(r[ColumnName])
		val := strings.TrimSpace(r[ColumnValue])
		if name == "" || val == "" {
			continue
		}
		lvl := level.Level(level.Canon(r[ColumnLevel]))
		if lvl == "" {
			lvl = level.All
		}
		c.add(name, val, lvl)
	}
	return c
}

// Tokenize splits a possibly multi-valued cell on commas, semicolons and pipes.
func Tokenize(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	v = strings.NewReplacer(";", ",", "|", ",").Replace(v)
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options returns dropdown choices for fields of level l, keyed by field name.
// environment/environments share options, and vulnerabilities_detected always
// has its tri-state choices.
func Options(t table.Table, l level.Level) map[string][]Option {
	out := make(map[string][]Option)
	if t.HasColumns(ColumnName, ColumnValue) {
		for _, r := range t.Rows {
			scope := level.Canon(r[ColumnLevel])
			if scope == "" {
				scope = string(level.All)
			}
			if scope != string(level.All) && scope != string(l) {
				continue
			}
			name := strings.TrimSpace(r[ColumnName])
			val := strings.TrimSpace(r[ColumnValue])
			if name == "" || val == "" {
				continue
			}
			label := strings.TrimSpace(r[ColumnDescription])
			if label == "" {
				label = val
			}
			out[name] = append(out[name], Option{Value: val, Label: label})
		}
	}

	if opts, ok := out["environment"]; ok {
		if _, ok := out["environments"]; !ok {
			out["environments"] = append([]Option{}, opts...)
		}
	}
	if opts, ok := out["environments"]; ok {
		if _, ok := out["environment"]; !ok {
			out["environment"] = append([]Option{}, opts...)
		}
	}
	if _, ok := out["vulnerabilities_detected"]; !ok {
		out["vulnerabilities_detected"] = []Option{
			{Value: "yes", Label: "yes"},
			{Value: "no", Label: "no"},
			{Value: "unknown", Label: "unknown"},
		}
	}
	return out
}
