package persistence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/sar/modules/registry/domain/level"
	"github.com/iota-uz/sar/modules/registry/domain/table"
)

// ErrNotWorkbook is returned when the registry path is not an xlsx container.
var ErrNotWorkbook = errors.New("registry file is not an xlsx workbook")

const backupLayout = "20060102_150405"

// XLSXStore keeps the registry in one workbook, one sheet per table. Every
// call opens the file, works on it and closes it again; calls are serialized.
type XLSXStore struct {
	storeOptions
	path string
	mu   sync.Mutex
}

type storeOptions struct {
	backupDir string
	now       func() time.Time
}

type StoreOption func(*storeOptions)

// WithBackupDir writes backups to dir instead of next to the registry.
func WithBackupDir(dir string) StoreOption {
	return func(o *storeOptions) { o.backupDir = dir }
}

// WithClock overrides the time used to name backups.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewXLSXStore(path string, opts ...StoreOption) *XLSXStore {
	return &XLSXStore{storeOptions: newStoreOptions(opts), path: path}
}

func (s *XLSXStore) Path() string { return s.path }

func (s *XLSXStore) open() (*excelize.File, error) {
	mime, err := mimetype.DetectFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open registry %s", s.path)
	}
	if !isZip(mime) {
		return nil, errors.Wrapf(ErrNotWorkbook, "%s detected as %s", s.path, mime.String())
	}
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open registry %s", s.path)
	}
	return f, nil
}

func isZip(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true
		}
	}
	return false
}

func (s *XLSXStore) LoadTables(ctx context.Context) (table.Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(table.Set)
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := readGrid(f, sheet)
		if err != nil {
			return nil, err
		}
		out[sheet] = g.table()
	}
	return out, nil
}

func readGrid(f *excelize.File, sheet string) (*grid, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "sheet %s", sheet)
	}
	if idx < 0 {
		return nil, errors.Wrap(table.ErrSheetNotFound, sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheet)
	}
	return newGrid(sheet, rows), nil
}

// mutate runs fn on one sheet and saves the changed cells. With create set a
// missing sheet is added instead of failing.
func (s *XLSXStore) mutate(sheet string, create bool, fn func(*grid) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := readGrid(f, sheet)
	if errors.Is(err, table.ErrSheetNotFound) && create {
		if _, err = f.NewSheet(sheet); err != nil {
			return errors.Wrapf(err, "create sheet %s", sheet)
		}
		g = newGrid(sheet, nil)
	} else if err != nil {
		return err
	}
	if err := fn(g); err != nil {
		return err
	}
	for _, c := range g.changes {
		name, err := excelize.CoordinatesToCellName(c.col+1, c.row+1)
		if err != nil {
			return errors.Wrapf(err, "%s cell %d,%d", sheet, c.row, c.col)
		}
		if err := f.SetCellValue(sheet, name, c.value); err != nil {
			return errors.Wrapf(err, "write %s!%s", sheet, name)
		}
	}
	if err := f.Save(); err != nil {
		return errors.Wrapf(err, "save registry %s", s.path)
	}
	return nil
}

func (s *XLSXStore) UpdateFields(_ context.Context, sheet, humanID string, fields map[string]string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.updateFields(humanID, fields) })
}

func (s *XLSXStore) AddField(_ context.Context, sheet, humanID, field, value string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.addField(humanID, field, value) })
}

func (s *XLSXStore) AppendRow(_ context.Context, sheet string, row map[string]string) error {
	return s.mutate(sheet, false, func(g *grid) error { return g.appendRow(row) })
}

func (s *XLSXStore) SetStatus(_ context.Context, sheet, humanID, status string) error {
	return s.mutate(sheet, false, func(g *grid) error {
		if g.col(level.FieldStatus) < 0 {
			return errors.Wrapf(table.ErrColumnNotFound, "%s has no %s column", sheet, level.FieldStatus)
		}
		return g.updateFields(humanID, map[string]string{level.FieldStatus: status})
	})
}

func (s *XLSXStore) WriteMeta(_ context.Context, updates map[string]string) error {
	return s.mutate(level.SheetMeta, true, func(g *grid) error { return g.upsertMeta(updates) })
}

func (s *XLSXStore) NextHumanID(_ context.Context, sheet, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	g, err := readGrid(f, sheet)
	if err != nil {
		return "", err
	}
	return g.nextHumanID(prefix)
}

func (s *XLSXStore) Headers(_ context.Context, sheet string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := readGrid(f, sheet)
	if err != nil {
		return nil, err
	}
	return append([]string{}, g.header()...), nil
}

// Backup copies the workbook to <name>.bak_YYYYmmdd_HHMMSS and returns the copy's path.
func (s *XLSXStore) Backup(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst := backupPath(s.path, s.backupDir, s.now())
	if err := copyFile(s.path, dst); err != nil {
		return "", errors.Wrapf(err, "backup registry %s", s.path)
	}
	return dst, nil
}

func backupPath(path, dir string, at time.Time) string {
	name := fmt.Sprintf("%s.bak_%s", filepath.Base(path), at.Format(backupLayout))
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, name)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
