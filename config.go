package tsdb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options configures an engine file handle.
type Options struct {
	// SplitIndexGT is the data-table size above which a series builds its
	// sparse index. Default: 262144.
	SplitIndexGT uint64 `yaml:"split_index_gt"`

	// IndexStep is the spacing between sparse index points, in records.
	// Default: 65536.
	IndexStep uint64 `yaml:"index_step"`

	// Align is the byte alignment for record field layout. Default: 4.
	// Set to 1 to pack fields tightly.
	Align int `yaml:"align"`

	// SQLite configures the SQLite-backed container.
	SQLite SQLiteContainerOptions `yaml:"sqlite"`
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	opts := Options{}
	opts.normalize()
	return opts
}

func (o *Options) normalize() {
	if o.SplitIndexGT == 0 {
		o.SplitIndexGT = DefaultSplitIndexGT
	}
	if o.IndexStep == 0 {
		o.IndexStep = DefaultIndexStep
	}
	if o.Align <= 0 {
		o.Align = DefaultAlign
	}
	o.SQLite.normalize()
}

// LoadOptions reads Options from a YAML file. Settings absent from the file
// keep their defaults.
func LoadOptions(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var opts Options
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options %s: %w", path, err)
	}
	opts.normalize()
	return opts, nil
}
