package table

import "github.com/pkg/errors"

// Storage providers wrap these so callers can tell a bad request from a broken store.
var (
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrRowNotFound    = errors.New("row not found")
	ErrColumnNotFound = errors.New("column not found")
	ErrColumnExists   = errors.New("column already exists")
	ErrDuplicateID    = errors.New("duplicate human_id")
)
