package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatched(t *testing.T) {
	book := filepath.Join("reg", "registry.xlsx")
	cases := []struct {
		name string
		file string
		ev   fsnotify.Event
		want bool
	}{
		{"workbook write", book, fsnotify.Event{Name: book, Op: fsnotify.Write}, true},
		{"workbook backup", book, fsnotify.Event{Name: book + ".bak_20250101_000000", Op: fsnotify.Create}, false},
		{"workbook chmod", book, fsnotify.Event{Name: book, Op: fsnotify.Chmod}, false},
		{"csv sheet", "", fsnotify.Event{Name: filepath.Join("reg", "C1_Proyectos.csv"), Op: fsnotify.Rename}, true},
		{"csv temp file", "", fsnotify.Event{Name: filepath.Join("reg", ".C1_Proyectos.csv.tmp"), Op: fsnotify.Create}, false},
		{"csv other file", "", fsnotify.Event{Name: filepath.Join("reg", "notes.txt"), Op: fsnotify.Write}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, watched(tc.file, tc.ev))
		})
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "META.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("key,value\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, nil, func(name string) {
			select {
			case changed <- name:
			default:
			}
		})
	}()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(sheet, []byte("key,value\nowner,platform\n"), 0o644)
		select {
		case name := <-changed:
			return filepath.Base(name) == "META.csv"
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	err := Watch(context.Background(), filepath.Join(dir, "missing"), nil, func(string) {})
	require.Error(t, err)
}
