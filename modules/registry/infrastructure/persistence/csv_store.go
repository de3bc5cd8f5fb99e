package persistence

import (
	"bufio"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

const csvExt = ".csv"

// CSVStore keeps the registry as a directory holding one <sheet>.csv per table.
type CSVStore struct {
	storeOptions
	dir string
	mu  sync.Mutex
}

func NewCSVStore(dir string, opts ...StoreOption) *CSVStore {
	return &CSVStore{storeOptions: newStoreOptions(opts), dir: dir}
}

func (s *CSVStore) sheetPath(sheet string) string {
	return filepath.Join(s.dir, sheet+csvExt)
}

func (s *CSVStore) LoadTables(ctx context.Context) (table.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open registry %s", s.dir)
	}
	out := make(table.Set)
	for _, e := range entries {
		if !isSheetFile(e) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		g, err := s.read(sheet)
		if err != nil {
			return nil, err
		}
		out[sheet] = g.table()
	}
	return out, nil
}

func isSheetFile(e os.DirEntry) bool {
	return !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && strings.EqualFold(filepath.Ext(e.Name()), csvExt)
}

func (s *CSVStore) read(sheet string) (*grid, error) {
	f, err := os.Open(s.sheetPath(sheet))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(table.ErrSheetNotFound, sheet)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open sheet %s", sheet)
	}
	defer f.Close()

	r := csv.NewReader(stripUTF8BOM(bufio.NewReader(f)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheet)
	}
	return newGrid(sheet, rows), nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// write replaces the sheet file through a temp file in the same directory.
func (s *CSVStore) write(g *grid) error {
	tmp, err := os.CreateTemp(s.dir, "."+g.name+"-*"+csvExt)
	if err != nil {
		return errors.Wrapf(err, "write sheet %s", g.name)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(g.rows); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write sheet %s", g.name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write sheet %s", g.name)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.sheetPath(g.name)), "replace sheet %s", g.name)
}

func (s *CSVStore) mutate(sheet string, create bool, fn func(*grid) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.read(sheet)
	if errors.Is(err, table.ErrSheetNotFound) && create {
		g, err = newGrid(sheet, nil), nil
	}
	if err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}
	if len(g.changes) == 0 {
		return nil
	}
	return s.write(g)
}

func (s *CSVStore) UpdateFields(_ context.Context, sheet, humanID string, fields map[string]string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.updateFields(humanID, fields) })
}

func (s *CSVStore) AddField(_ context.Context, sheet, humanID, field, value string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.addField(humanID, field, value) })
}

func (s *CSVStore) AppendRow(_ context.Context, sheet string, row map[string]string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.appendRow(row) })
}

func (s *CSVStore) SetStatus(_ context.Context, sheet, humanID, status string) error {
	return s.mutate(sheet, false, func(g *grid) error {
		if g.col(level.FieldStatus) < 0 {
			return errors.Wrapf(table.ErrColumnNotFound, "%s has no %s column", sheet, level.FieldStatus)
		}
		return g.updateFields(humanID, map[string]string{level.FieldStatus: status})
	})
}

func (s *CSVStore) WriteMeta(_ context.Context, updates map[string]string) error {
	return s.mutate(level.SheetMeta, true, func(g *grid) error { return g.upsertMeta(updates) })
}

func (s *CSVStore) NextHumanID(_ context.Context, sheet, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.read(sheet)
	if err != nil {
		return "", err
	}
	return g.nextHumanID(prefix)
}

func (s *CSVStore) Headers(_ context.Context, sheet string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.read(sheet)
	if err != nil {
		return nil, err
	}
	return append([]string{}, g.header()...), nil
}

// Backup copies every sheet into <dir>.bak_YYYYmmdd_HHMMSS/.
func (s *CSVStore) Backup(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", errors.Wrapf(err, "backup registry %s", s.dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if isSheetFile(e) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	dst := backupPath(filepath.Clean(s.dir), s.backupDir, s.now())
	for _, name := range names {
		if err := copyFile(filepath.Join(s.dir, name), filepath.Join(dst, name)); err != nil {
			return "", errors.Wrapf(err, "backup registry %s", s.dir)
		}
	}
	return dst, nil
}
