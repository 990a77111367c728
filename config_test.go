package tsdb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.SplitIndexGT != DefaultSplitIndexGT {
		t.Fatalf("SplitIndexGT = %d", opts.SplitIndexGT)
	}
	if opts.IndexStep != DefaultIndexStep {
		t.Fatalf("IndexStep = %d", opts.IndexStep)
	}
	if opts.Align != DefaultAlign {
		t.Fatalf("Align = %d", opts.Align)
	}
	if opts.SQLite.JournalMode != "WAL" {
		t.Fatalf("JournalMode = %q", opts.SQLite.JournalMode)
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	raw := `split_index_gt: 1000
index_step: 100
align: 1
sqlite:
  journal_mode: DELETE
  busy_timeout: 100
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.SplitIndexGT != 1000 || opts.IndexStep != 100 || opts.Align != 1 {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.SQLite.JournalMode != "DELETE" || opts.SQLite.BusyTimeout != 100 {
		t.Fatalf("sqlite opts = %+v", opts.SQLite)
	}
	// Unset settings keep their defaults.
	if opts.SQLite.Synchronous != "NORMAL" {
		t.Fatalf("Synchronous = %q", opts.SQLite.Synchronous)
	}
}

func TestLoadOptionsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	if err := os.WriteFile(path, []byte(":\t:"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOptions(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}
