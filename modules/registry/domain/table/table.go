package table

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Record is one row keyed by column name. Column order lives on the Table.
type Record map[string]string

func (r Record) Get(col string) string {
	return r[col]
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered, string-typed sheet with a data-driven column set.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// Set maps a sheet name to its table.
type Set map[string]Table

// New builds a table from a header row and raw cell rows. Headers and cells
// are trimmed, short rows are padded and blank headers are dropped. Repeated
// headers get the first free ".N" suffix. Rows with no content are skipped.
func New(name string, header []string, rows [][]string) Table {
	t := Table{Name: name, Columns: []string{}, Rows: []Record{}}

	idx := make([]int, 0, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		col := CleanHeader(h)
		if col == "" {
			continue
		}
		// a suffixed name may itself be taken by a literal header
		for n := used[col]; n > 0; n = used[col] {
			used[col] = n + 1
			col = col + "." + strconv.Itoa(n)
		}
		used[col] = 1
		t.Columns = append(t.Columns, col)
		idx = append(idx, i)
	}

	for _, raw := range rows {
		rec := make(Record, len(t.Columns))
		blank := true
		for ci, col := range t.Columns {
			v := ""
			if src := idx[ci]; src < len(raw) {
				v = strings.TrimSpace(raw[src])
			}
			if v != "" {
				blank = false
			}
			rec[col] = v
		}
		if blank {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t
}

// CleanHeader folds compatibility characters (e.g. non-breaking spaces) and trims.
func CleanHeader(h string) string {
	return strings.TrimSpace(norm.NFKC.String(h))
}

func (t Table) Len() int { return len(t.Rows) }

func (t Table) IsEmpty() bool { return len(t.Rows) == 0 }

func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// HasColumns reports whether every one of cols is present.
func (t Table) HasColumns(cols ...string) bool {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return false
		}
	}
	return true
}

// Normalize returns a copy with trimmed column names and trimmed cells, every
// row carrying every column.
func (t Table) Normalize() Table {
	out := Table{Name: t.Name, Columns: make([]string, 0, len(t.Columns)), Rows: make([]Record, 0, len(t.Rows))}
	rename := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		nc := CleanHeader(c)
		rename[c] = nc
		out.Columns = append(out.Columns, nc)
	}
	for _, r := range t.Rows {
		rec := make(Record, len(out.Columns))
		for _, c := range t.Columns {
			rec[rename[c]] = strings.TrimSpace(r[c])
		}
		out.Rows = append(out.Rows, rec)
	}
	return out
}

func (t Table) Clone() Table {
	out := Table{Name: t.Name, Columns: append([]string{}, t.Columns...), Rows: make([]Record, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// WithPrefix returns a copy with every column renamed to prefix+column.
func (t Table) WithPrefix(prefix string) Table {
	out := Table{Name: t.Name, Columns: make([]string, len(t.Columns)), Rows: make([]Record, len(t.Rows))}
	for i, c := range t.Columns {
		out.Columns[i] = prefix + c
	}
	for i, r := range t.Rows {
		rec := make(Record, len(r))
		for k, v := range r {
			rec[prefix+k] = v
		}
		out.Rows[i] = rec
	}
	return out
}

// Column returns the values of col in row order; nil when the column is absent.
func (t Table) Column(col string) []string {
	if !t.HasColumn(col) {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[col]
	}
	return out
}

// Find returns the first row whose col matches value after canonicalization
// (trim + upper).
func (t Table) Find(col, value string) (Record, bool) {
	if !t.HasColumn(col) {
		return nil, false
	}
	want := canon(value)
	for _, r := range t.Rows {
		if canon(r[col]) == want {
			return r, true
		}
	}
	return nil, false
}

// Values converts the table back to a header row plus cell rows.
func (t Table) Values() ([]string, [][]string) {
	header := append([]string{}, t.Columns...)
	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]string, len(t.Columns))
		for ci, c := range t.Columns {
			row[ci] = r[c]
		}
		rows[i] = row
	}
	return header, rows
}

func canon(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
