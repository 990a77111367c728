package tsdb

import (
	"fmt"
	"sort"
)

// MemoryContainer is a map-backed container used for tests and scratch
// series. Nothing is persisted.
type MemoryContainer struct {
	root     *memoryGroup
	readOnly bool
	closed   bool
}

// NewMemoryContainer creates an empty in-memory container.
func NewMemoryContainer() *MemoryContainer {
	return &MemoryContainer{root: newMemoryGroup()}
}

// Root returns the top-level group.
func (c *MemoryContainer) Root() (Group, error) {
	if c.closed {
		return nil, ErrClosed
	}
	return c.root, nil
}

// ReadOnly reports whether the container rejects writes.
func (c *MemoryContainer) ReadOnly() bool {
	return c.readOnly
}

// Close releases the container.
func (c *MemoryContainer) Close() error {
	c.closed = true
	return nil
}

type memoryGroup struct {
	groups map[string]*memoryGroup
	tables map[string]*memoryTable
}

func newMemoryGroup() *memoryGroup {
	return &memoryGroup{
		groups: make(map[string]*memoryGroup),
		tables: make(map[string]*memoryTable),
	}
}

func (g *memoryGroup) CreateGroup(name string) (Group, error) {
	if _, ok := g.groups[name]; ok {
		return nil, fmt.Errorf("%w: group %q", ErrSeriesExists, name)
	}
	child := newMemoryGroup()
	g.groups[name] = child
	return child, nil
}

func (g *memoryGroup) OpenGroup(name string) (Group, error) {
	child, ok := g.groups[name]
	if !ok {
		return nil, fmt.Errorf("%w: group %q", ErrSeriesMissing, name)
	}
	return child, nil
}

func (g *memoryGroup) GroupExists(name string) (bool, error) {
	_, ok := g.groups[name]
	return ok, nil
}

func (g *memoryGroup) List() ([]string, error) {
	names := make([]string, 0, len(g.groups))
	for name := range g.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *memoryGroup) CreateTable(name string, spec TableSpec) (ContainerTable, error) {
	if _, ok := g.tables[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}
	t := &memoryTable{spec: spec, attrs: make(map[string]string)}
	g.tables[name] = t
	return t, nil
}

func (g *memoryGroup) OpenTable(name string) (ContainerTable, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableMissing, name)
	}
	return t, nil
}

func (g *memoryGroup) TableExists(name string) (bool, error) {
	_, ok := g.tables[name]
	return ok, nil
}

type memoryTable struct {
	spec  TableSpec
	data  []byte
	attrs map[string]string
}

func (t *memoryTable) RecordSize() int {
	return t.spec.RecordSize
}

func (t *memoryTable) Columns() ([]ColumnSpec, error) {
	return t.spec.Columns, nil
}

func (t *memoryTable) NumRecords() (uint64, error) {
	return uint64(len(t.data) / t.spec.RecordSize), nil
}

func (t *memoryTable) Append(records []byte) error {
	if len(records)%t.spec.RecordSize != 0 {
		return newStorageError("append", "", fmt.Errorf("%d bytes is not a whole number of records", len(records)))
	}
	t.data = append(t.data, records...)
	return nil
}

func (t *memoryTable) ReadAt(first, count uint64, dst []byte) error {
	stride := uint64(t.spec.RecordSize)
	n := uint64(len(t.data)) / stride
	if first+count > n {
		return newStorageError("read", "", fmt.Errorf("records [%d,%d) beyond table size %d", first, first+count, n))
	}
	copy(dst, t.data[first*stride:(first+count)*stride])
	return nil
}

func (t *memoryTable) SetAttribute(key, value string) error {
	t.attrs[key] = value
	return nil
}

func (t *memoryTable) Attribute(key string) (string, bool, error) {
	v, ok := t.attrs[key]
	return v, ok, nil
}
