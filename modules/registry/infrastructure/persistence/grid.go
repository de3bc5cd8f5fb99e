package persistence

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const (
	metaKeyColumn   = "key"
	metaValueColumn = "value"
)

// cell is a 0-based coordinate written by a grid operation.
type cell struct {
	row, col int
	value    string
}

// grid is one sheet as raw rows, header first. Operations record the cells
// they touch so a provider can persist only those.
type grid struct {
	name    string
	rows    [][]string
	changes []cell
}

func newGrid(name string, rows [][]string) *grid {
	return &grid{name: name, rows: rows}
}

func (g *grid) table() table.Table {
	if len(g.rows) == 0 {
		return table.New(g.name, nil, nil)
	}
	return table.New(g.name, g.rows[0], g.rows[1:])
}

func (g *grid) header() []string {
	if len(g.rows) == 0 {
		return nil
	}
	return g.rows[0]
}

// col finds a column by normalized header, -1 when absent.
func (g *grid) col(field string) int {
	key := level.NormalizeKey(field)
	for i, h := range g.header() {
		if level.NormalizeKey(table.CleanHeader(h)) == key {
			return i
		}
	}
	return -1
}

func (g *grid) value(row, col int) string {
	if row >= len(g.rows) || col >= len(g.rows[row]) {
		return ""
	}
	return g.rows[row][col]
}

func (g *grid) set(row, col int, v string) {
	for len(g.rows) <= row {
		g.rows = append(g.rows, nil)
	}
	for len(g.rows[row]) <= col {
		g.rows[row] = append(g.rows[row], "")
	}
	g.rows[row][col] = v
	g.changes = append(g.changes, cell{row: row, col: col, value: v})
}

func (g *grid) humanIDCol() (int, error) {
	c := g.col(level.FieldHumanID)
	if c < 0 {
		return -1, errors.Wrapf(table.ErrColumnNotFound, "%s has no %s column", g.name, level.FieldHumanID)
	}
	return c, nil
}

// find returns the row index of humanID, matched case-insensitively.
func (g *grid) find(humanID string) (int, error) {
	c, err := g.humanIDCol()
	if err != nil {
		return -1, err
	}
	want := level.Canon(humanID)
	if want == "" {
		return -1, errors.Wrapf(table.ErrRowNotFound, "blank human_id in %s", g.name)
	}
	for i := 1; i < len(g.rows); i++ {
		if level.Canon(g.value(i, c)) == want {
			return i, nil
		}
	}
	return -1, errors.Wrapf(table.ErrRowNotFound, "%s in %s", want, g.name)
}

func (g *grid) updateFields(humanID string, fields map[string]string) error {
	row, err := g.find(humanID)
	if err != nil {
		return err
	}
	cols := make(map[string]int, len(fields))
	var missing []string
	for field := range fields {
		c := g.col(field)
		if c < 0 {
			missing = append(missing, field)
			continue
		}
		cols[field] = c
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Wrapf(table.ErrColumnNotFound, "%s: %s", g.name, strings.Join(missing, ", "))
	}
	keys := make([]string, 0, len(cols))
	for field := range cols {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	for _, field := range keys {
		g.set(row, cols[field], fields[field])
	}
	return nil
}

// addField appends a new column and sets it on one record.
func (g *grid) addField(humanID, field, value string) error {
	field = level.NormalizeKey(field)
	if field == "" {
		return errors.Wrap(table.ErrColumnNotFound, "blank field name")
	}
	row, err := g.find(humanID)
	if err != nil {
		return err
	}
	if g.col(field) >= 0 {
		return errors.Wrapf(table.ErrColumnExists, "%s in %s", field, g.name)
	}
	c := len(g.header())
	g.set(0, c, field)
	g.set(row, c, value)
	return nil
}

// lastIDRow is the index of the last row with a non-blank human_id, 0 when none.
func (g *grid) lastIDRow(hidCol int) int {
	last := 0
	for i := 1; i < len(g.rows); i++ {
		if strings.TrimSpace(g.value(i, hidCol)) != "" {
			last = i
		}
	}
	return last
}

// appendRow writes row right after the last identified record. Keys that
// are not existing columns are dropped.
func (g *grid) appendRow(row map[string]string) error {
	hidCol, err := g.humanIDCol()
	if err != nil {
		return err
	}
	values := make(map[string]string, len(row))
	for k, v := range row {
		values[level.NormalizeKey(k)] = v
	}
	hid := strings.TrimSpace(values[level.FieldHumanID])
	if hid == "" {
		return errors.Wrapf(table.ErrColumnNotFound, "row for %s has no %s", g.name, level.FieldHumanID)
	}
	if _, err := g.find(hid); err == nil {
		return errors.Wrapf(table.ErrDuplicateID, "%s in %s", level.Canon(hid), g.name)
	}
	target := g.lastIDRow(hidCol) + 1
	for c, h := range g.header() {
		key := level.NormalizeKey(table.CleanHeader(h))
		if v, ok := values[key]; ok && key != "" {
			g.set(target, c, v)
		}
	}
	return nil
}

// nextHumanID returns prefix followed by the highest existing number plus one.
func (g *grid) nextHumanID(prefix string) (string, error) {
	prefix = level.Canon(prefix)
	hidCol, err := g.humanIDCol()
	if err != nil {
		return "", err
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d+)$`)
	highest := 0
	for i := 1; i < len(g.rows); i++ {
		m := re.FindStringSubmatch(level.Canon(g.value(i, hidCol)))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1), nil
}

// upsertMeta writes key/value pairs, updating existing keys in place.
func (g *grid) upsertMeta(updates map[string]string) error {
	if len(g.rows) == 0 {
		g.set(0, 0, metaKeyColumn)
		g.set(0, 1, metaValueColumn)
	}
	kc, vc := g.col(metaKeyColumn), g.col(metaValueColumn)
	if kc < 0 || vc < 0 {
		return errors.Wrapf(table.ErrColumnNotFound, "%s needs %s and %s columns", g.name, metaKeyColumn, metaValueColumn)
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row := -1
		last := 0
		for i := 1; i < len(g.rows); i++ {
			cur := strings.TrimSpace(g.value(i, kc))
			if cur == "" {
				continue
			}
			last = i
			if cur == k {
				row = i
				break
			}
		}
		if row < 0 {
			row = last + 1
			g.set(row, kc, k)
		}
		g.set(row, vc, updates[k])
	}
	return nil
}
