package services

import (
	"sort"
	"strings"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// ViewName is the table name of the joined view.
const ViewName = "VIEW_Full"

var droppedViewColumns = map[string]struct{}{
	"c2__c1_human_id": {},
	"c3__c2_human_id": {},
	"c4__c3_human_id": {},
}

var viewSortColumns = []string{"c1__human_id", "c2__human_id", "c3__human_id", "c4__human_id"}

// buildView joins runtimes up to their project. Only complete chains are kept;
// rows are stable-sorted by the four prefixed human_id columns.
func buildView(c1, c2, c3, c4 table.Table) table.Table {
	p1 := c1.WithPrefix(level.C1.Prefix())
	p2 := c2.WithPrefix(level.C2.Prefix())
	p3 := c3.WithPrefix(level.C3.Prefix())
	p4 := c4.WithPrefix(level.C4.Prefix())

	view := table.Table{Name: ViewName, Columns: []string{}, Rows: []table.Record{}}
	for _, p := range []table.Table{p4, p3, p2, p1} {
		for _, col := range p.Columns {
			if _, drop := droppedViewColumns[col]; !drop {
				view.Columns = append(view.Columns, col)
			}
		}
	}

	joined := p4.Rows
	joined = innerJoin(joined, "c4__c3_human_id", p3, "c3__human_id")
	joined = innerJoin(joined, "c3__c2_human_id", p2, "c2__human_id")
	joined = innerJoin(joined, "c2__c1_human_id", p1, "c1__human_id")

	for _, r := range joined {
		for col := range droppedViewColumns {
			delete(r, col)
		}
		view.Rows = append(view.Rows, r)
	}

	sort.SliceStable(view.Rows, func(i, j int) bool {
		a, b := view.Rows[i], view.Rows[j]
		for _, col := range viewSortColumns {
			if a[col] != b[col] {
				return a[col] < b[col]
			}
		}
		return false
	})
	return view
}

// innerJoin merges every left row with each right row whose rightKey equals
// the left row's leftKey. Left order is kept, right matches follow right order.
// Blank keys never match.
func innerJoin(left []table.Record, leftKey string, right table.Table, rightKey string) []table.Record {
	if !right.HasColumn(rightKey) {
		return nil
	}
	index := make(map[string][]table.Record)
	for _, r := range right.Rows {
		k := strings.TrimSpace(r[rightKey])
		if k == "" {
			continue
		}
		index[k] = append(index[k], r)
	}

	var out []table.Record
	for _, l := range left {
		k, ok := l[leftKey]
		if !ok {
			continue
		}
		for _, r := range index[strings.TrimSpace(k)] {
			merged := make(table.Record, len(l)+len(r))
			for col, v := range l {
				merged[col] = v
			}
			for col, v := range r {
				merged[col] = v
			}
			out = append(out, merged)
		}
	}
	return out
}
