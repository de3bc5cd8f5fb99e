package persistence

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/lookup"
	"github.com/iota-uz/sar/modules/registry/domain/rule"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// ConfigFile is the YAML form of the LOOKUPS and RULES sheets.
type ConfigFile struct {
	Lookups []LookupDef `yaml:"lookups" validate:"dive"`
	Rules   []RuleDef   `yaml:"rules" validate:"dive"`
}

type LookupDef struct {
	Name        string   `yaml:"name" validate:"required"`
	Values      []string `yaml:"values" validate:"required,min=1,dive,required"`
	Levels      []string `yaml:"levels" validate:"dive,oneof=C1 C2 C3 C4 ALL c1 c2 c3 c4 all"`
	Description string   `yaml:"description"`
}

type RuleDef struct {
	ID           string     `yaml:"rule_id" validate:"required"`
	Level        string     `yaml:"level" validate:"required,oneof=C1 C2 C3 C4 c1 c2 c3 c4"`
	Severity     string     `yaml:"severity"`
	Message      string     `yaml:"message"`
	SuggestedFix string     `yaml:"suggested_fix"`
	Groups       []GroupDef `yaml:"groups" validate:"required,min=1,dive"`
}

type GroupDef struct {
	ID         string         `yaml:"group_id"`
	Logic      string         `yaml:"logic" validate:"omitempty,oneof=AND OR and or"`
	Conditions []ConditionDef `yaml:"conditions" validate:"required,min=1,dive"`
}

type ConditionDef struct {
	Field string `yaml:"field" validate:"required"`
	Op    string `yaml:"op" validate:"required"`
	Value string `yaml:"value"`
}

// YAMLConfigStore reads LOOKUPS and RULES from a YAML file so they can live
// in version control next to the workbook.
type YAMLConfigStore struct {
	path     string
	validate *validator.Validate
}

func NewYAMLConfigStore(path string) *YAMLConfigStore {
	return &YAMLConfigStore{path: path, validate: validator.New()}
}

func (s *YAMLConfigStore) LoadConfig(_ context.Context) (table.Table, table.Table, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return table.Table{}, table.Table{}, errors.Wrapf(err, "read config %s", s.path)
	}
	var cfg ConfigFile
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return table.Table{}, table.Table{}, errors.Wrapf(err, "parse config %s", s.path)
	}
	if err := s.validate.Struct(cfg); err != nil {
		return table.Table{}, table.Table{}, errors.Wrapf(err, "invalid config %s", s.path)
	}
	return cfg.LookupsTable(), cfg.RulesTable(), nil
}

// LookupsTable flattens lookups to one row per value and level.
func (c ConfigFile) LookupsTable() table.Table {
	header := []string{lookup.ColumnName, lookup.ColumnValue, lookup.ColumnLevel, lookup.ColumnDescription}
	var rows [][]string
	for _, l := range c.Lookups {
		levels := l.Levels
		if len(levels) == 0 {
			levels = []string{string(level.All)}
		}
		for _, v := range l.Values {
			for _, lvl := range levels {
				rows = append(rows, []string{l.Name, v, lvl, l.Description})
			}
		}
	}
	return table.New(level.SheetLookups, header, rows)
}

// RulesTable flattens rules to one row per condition.
func (c ConfigFile) RulesTable() table.Table {
	var rows [][]string
	for _, r := range c.Rules {
		for gi, g := range r.Groups {
			gid := g.ID
			if gid == "" {
				gid = fmt.Sprintf("g%d", gi+1)
			}
			for _, cond := range g.Conditions {
				rows = append(rows, []string{
					r.ID, r.Level, gid, g.Logic, cond.Field, cond.Op, cond.Value,
					r.Severity, r.Message, r.SuggestedFix,
				})
			}
		}
	}
	return table.New(level.SheetRules, rule.RequiredColumns, rows)
}
