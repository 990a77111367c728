package tsdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang/snappy"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteContainerOptions configures the SQLite-backed container.
type SQLiteContainerOptions struct {
	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, ...).
	JournalMode string `yaml:"journal_mode"`

	// Synchronous sets the synchronous pragma (OFF, NORMAL, FULL, EXTRA).
	Synchronous string `yaml:"synchronous"`

	// BusyTimeout is the lock acquisition timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`

	// CacheSize is passed unchanged to the cache_size pragma; a positive
	// value sets the SQLite page cache size in pages.
	CacheSize int `yaml:"cache_size"`
}

// DefaultSQLiteContainerOptions returns default container settings.
func DefaultSQLiteContainerOptions() SQLiteContainerOptions {
	return SQLiteContainerOptions{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
		CacheSize:   2000,
	}
}

func (o *SQLiteContainerOptions) normalize() {
	if o.JournalMode == "" {
		o.JournalMode = "WAL"
	}
	if o.Synchronous == "" {
		o.Synchronous = "NORMAL"
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5000
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 2000
	}
}

// SQLiteContainer stores groups, tables, attributes and record chunks in a
// single SQLite database file. Record bytes live in per-table chunks of a
// fixed record count, snappy-compressed. Appends run inside a transaction,
// so a failed append leaves the table unchanged.
type SQLiteContainer struct {
	db       *sql.DB
	path     string
	readOnly bool
	closed   bool

	// Prepared statements for the chunk hot path
	selectChunk *sql.Stmt
	insertChunk *sql.Stmt
	updateChunk *sql.Stmt
}

// CreateSQLiteContainer creates a new container file. If the path exists and
// overwriteOK is false it fails with ErrFileExists; otherwise the existing
// file is replaced.
func CreateSQLiteContainer(path string, overwriteOK bool, opts SQLiteContainerOptions) (*SQLiteContainer, error) {
	if _, err := os.Stat(path); err == nil {
		if !overwriteOK {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		if err := os.Remove(path); err != nil {
			return nil, newStorageError("create", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, newStorageError("create", path, err)
	}
	return openSQLiteContainer(path, false, opts)
}

// OpenSQLiteContainer opens an existing container file. It fails with
// ErrFileMissing when the path does not exist.
func OpenSQLiteContainer(path string, readOnly bool, opts SQLiteContainerOptions) (*SQLiteContainer, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, newStorageError("open", path, err)
	}
	return openSQLiteContainer(path, readOnly, opts)
}

func openSQLiteContainer(path string, readOnly bool, opts SQLiteContainerOptions) (*SQLiteContainer, error) {
	opts.normalize()

	dsn := fmt.Sprintf("file:%s?_pragma=synchronous(%s)&_pragma=busy_timeout(%d)&_pragma=cache_size(%d)",
		path, opts.Synchronous, opts.BusyTimeout, opts.CacheSize)
	if readOnly {
		dsn += "&mode=ro"
	} else {
		dsn += fmt.Sprintf("&_pragma=journal_mode(%s)", opts.JournalMode)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStorageError("open", path, err)
	}

	// The engine is single-threaded per handle; one connection keeps
	// transaction state simple.
	db.SetMaxOpenConns(1)

	c := &SQLiteContainer{db: db, path: path, readOnly: readOnly}

	if !readOnly {
		if err := c.initSchema(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := c.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return c, nil
}

func (c *SQLiteContainer) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			UNIQUE(parent_id, name)
		);

		CREATE TABLE IF NOT EXISTS tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			record_size INTEGER NOT NULL,
			chunk_size INTEGER NOT NULL,
			num_records INTEGER NOT NULL DEFAULT 0,
			UNIQUE(group_id, name)
		);

		CREATE TABLE IF NOT EXISTS columns (
			table_id INTEGER NOT NULL,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			offset INTEGER NOT NULL,
			size INTEGER NOT NULL,
			wire_type INTEGER NOT NULL,
			PRIMARY KEY(table_id, idx)
		);

		CREATE TABLE IF NOT EXISTS attrs (
			table_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY(table_id, key)
		);

		CREATE TABLE IF NOT EXISTS chunks (
			table_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			num_records INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY(table_id, seq)
		);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return newStorageError("init schema", c.path, err)
	}

	// The root group has id 1 under the reserved parent id 0.
	if _, err := c.db.Exec(`INSERT OR IGNORE INTO groups (parent_id, name) VALUES (0, '')`); err != nil {
		return newStorageError("init root group", c.path, err)
	}
	return nil
}

func (c *SQLiteContainer) prepareStatements() error {
	var err error
	c.selectChunk, err = c.db.Prepare(
		`SELECT seq, num_records, data FROM chunks WHERE table_id = ? AND seq BETWEEN ? AND ? ORDER BY seq`)
	if err != nil {
		return newStorageError("prepare", c.path, err)
	}
	if c.readOnly {
		return nil
	}
	c.insertChunk, err = c.db.Prepare(
		`INSERT INTO chunks (table_id, seq, num_records, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return newStorageError("prepare", c.path, err)
	}
	c.updateChunk, err = c.db.Prepare(
		`UPDATE chunks SET num_records = ?, data = ? WHERE table_id = ? AND seq = ?`)
	if err != nil {
		return newStorageError("prepare", c.path, err)
	}
	return nil
}

// Root returns the top-level group.
func (c *SQLiteContainer) Root() (Group, error) {
	if c.closed {
		return nil, ErrClosed
	}
	var id int64
	err := c.db.QueryRow(`SELECT id FROM groups WHERE parent_id = 0 AND name = ''`).Scan(&id)
	if err != nil {
		return nil, newStorageError("open root group", c.path, err)
	}
	return &sqliteGroup{c: c, id: id}, nil
}

// ReadOnly reports whether the container rejects writes.
func (c *SQLiteContainer) ReadOnly() bool {
	return c.readOnly
}

// Path returns the container file path.
func (c *SQLiteContainer) Path() string {
	return c.path
}

// Close releases the database handle.
func (c *SQLiteContainer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.db.Close(); err != nil {
		return newStorageError("close", c.path, err)
	}
	return nil
}

type sqliteGroup struct {
	c  *SQLiteContainer
	id int64
}

func (g *sqliteGroup) CreateGroup(name string) (Group, error) {
	if g.c.readOnly {
		return nil, ErrReadOnly
	}
	exists, err := g.GroupExists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: group %q", ErrSeriesExists, name)
	}
	res, err := g.c.db.Exec(`INSERT INTO groups (parent_id, name) VALUES (?, ?)`, g.id, name)
	if err != nil {
		return nil, newStorageError("create group", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newStorageError("create group", name, err)
	}
	return &sqliteGroup{c: g.c, id: id}, nil
}

func (g *sqliteGroup) OpenGroup(name string) (Group, error) {
	var id int64
	err := g.c.db.QueryRow(`SELECT id FROM groups WHERE parent_id = ? AND name = ?`, g.id, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: group %q", ErrSeriesMissing, name)
	}
	if err != nil {
		return nil, newStorageError("open group", name, err)
	}
	return &sqliteGroup{c: g.c, id: id}, nil
}

func (g *sqliteGroup) GroupExists(name string) (bool, error) {
	var one int
	err := g.c.db.QueryRow(`SELECT 1 FROM groups WHERE parent_id = ? AND name = ?`, g.id, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, newStorageError("stat group", name, err)
	}
	return true, nil
}

func (g *sqliteGroup) List() ([]string, error) {
	rows, err := g.c.db.Query(`SELECT name FROM groups WHERE parent_id = ? ORDER BY name`, g.id)
	if err != nil {
		return nil, newStorageError("list groups", g.c.path, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, newStorageError("list groups", g.c.path, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("list groups", g.c.path, err)
	}
	return names, nil
}

func (g *sqliteGroup) CreateTable(name string, spec TableSpec) (ContainerTable, error) {
	if g.c.readOnly {
		return nil, ErrReadOnly
	}
	exists, err := g.TableExists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}
	if spec.ChunkSize <= 0 {
		spec.ChunkSize = defaultChunkSize
	}

	tx, err := g.c.db.Begin()
	if err != nil {
		return nil, newStorageError("create table", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO tables (group_id, name, record_size, chunk_size) VALUES (?, ?, ?, ?)`,
		g.id, name, spec.RecordSize, spec.ChunkSize)
	if err != nil {
		return nil, newStorageError("create table", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, newStorageError("create table", name, err)
	}
	for i, col := range spec.Columns {
		_, err = tx.Exec(`INSERT INTO columns (table_id, idx, name, offset, size, wire_type) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, col.Name, col.Offset, col.Size, int(col.Type))
		if err != nil {
			return nil, newStorageError("create table", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, newStorageError("create table", name, err)
	}
	return &sqliteTable{c: g.c, id: id, name: name, recordSize: spec.RecordSize, chunkSize: spec.ChunkSize}, nil
}

func (g *sqliteGroup) OpenTable(name string) (ContainerTable, error) {
	var (
		id         int64
		recordSize int
		chunkSize  int
	)
	err := g.c.db.QueryRow(`SELECT id, record_size, chunk_size FROM tables WHERE group_id = ? AND name = ?`,
		g.id, name).Scan(&id, &recordSize, &chunkSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrTableMissing, name)
	}
	if err != nil {
		return nil, newStorageError("open table", name, err)
	}
	return &sqliteTable{c: g.c, id: id, name: name, recordSize: recordSize, chunkSize: chunkSize}, nil
}

func (g *sqliteGroup) TableExists(name string) (bool, error) {
	var one int
	err := g.c.db.QueryRow(`SELECT 1 FROM tables WHERE group_id = ? AND name = ?`, g.id, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, newStorageError("stat table", name, err)
	}
	return true, nil
}

type sqliteTable struct {
	c          *SQLiteContainer
	id         int64
	name       string
	recordSize int
	chunkSize  int
}

func (t *sqliteTable) RecordSize() int {
	return t.recordSize
}

func (t *sqliteTable) Columns() ([]ColumnSpec, error) {
	rows, err := t.c.db.Query(`SELECT name, offset, size, wire_type FROM columns WHERE table_id = ? ORDER BY idx`, t.id)
	if err != nil {
		return nil, newStorageError("read columns", t.name, err)
	}
	defer rows.Close()

	var cols []ColumnSpec
	for rows.Next() {
		var (
			col  ColumnSpec
			wire int
		)
		if err := rows.Scan(&col.Name, &col.Offset, &col.Size, &wire); err != nil {
			return nil, newStorageError("read columns", t.name, err)
		}
		col.Type = WireType(wire)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("read columns", t.name, err)
	}
	return cols, nil
}

func (t *sqliteTable) NumRecords() (uint64, error) {
	var n uint64
	if err := t.c.db.QueryRow(`SELECT num_records FROM tables WHERE id = ?`, t.id).Scan(&n); err != nil {
		return 0, newStorageError("stat table", t.name, err)
	}
	return n, nil
}

// Append writes records chunk by chunk inside one transaction. The partial
// tail chunk, if any, is rewritten first; the remainder is split into new
// chunks of chunkSize records.
func (t *sqliteTable) Append(records []byte) error {
	if t.c.readOnly {
		return ErrReadOnly
	}
	if len(records) == 0 {
		return nil
	}
	if len(records)%t.recordSize != 0 {
		return newStorageError("append", t.name, fmt.Errorf("%d bytes is not a whole number of records", len(records)))
	}

	n, err := t.NumRecords()
	if err != nil {
		return err
	}

	tx, err := t.c.db.Begin()
	if err != nil {
		return newStorageError("append", t.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	stride := uint64(t.recordSize)
	chunkRecs := uint64(t.chunkSize)
	remaining := records

	// Top up the partial tail chunk.
	if tail := n % chunkRecs; tail != 0 {
		seq := n / chunkRecs
		var (
			tailRecs uint64
			blob     []byte
		)
		err = tx.Stmt(t.c.selectChunk).QueryRow(t.id, seq, seq).Scan(&seq, &tailRecs, &blob)
		if err != nil {
			return newStorageError("append", t.name, err)
		}
		data, err := snappy.Decode(nil, blob)
		if err != nil {
			return newStorageError("append", t.name, err)
		}
		take := chunkRecs - tailRecs
		if take > uint64(len(remaining))/stride {
			take = uint64(len(remaining)) / stride
		}
		data = append(data, remaining[:take*stride]...)
		remaining = remaining[take*stride:]
		_, err = tx.Stmt(t.c.updateChunk).Exec(tailRecs+take, snappy.Encode(nil, data), t.id, seq)
		if err != nil {
			return newStorageError("append", t.name, err)
		}
		n += take
	}

	// Insert whole and final partial chunks.
	for len(remaining) > 0 {
		take := chunkRecs
		if avail := uint64(len(remaining)) / stride; take > avail {
			take = avail
		}
		seq := n / chunkRecs
		_, err = tx.Stmt(t.c.insertChunk).Exec(t.id, seq, take, snappy.Encode(nil, remaining[:take*stride]))
		if err != nil {
			return newStorageError("append", t.name, err)
		}
		remaining = remaining[take*stride:]
		n += take
	}

	if _, err := tx.Exec(`UPDATE tables SET num_records = ? WHERE id = ?`, n, t.id); err != nil {
		return newStorageError("append", t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return newStorageError("append", t.name, err)
	}
	return nil
}

func (t *sqliteTable) ReadAt(first, count uint64, dst []byte) error {
	if count == 0 {
		return nil
	}
	n, err := t.NumRecords()
	if err != nil {
		return err
	}
	if first+count > n {
		return newStorageError("read", t.name, fmt.Errorf("records [%d,%d) beyond table size %d", first, first+count, n))
	}

	stride := uint64(t.recordSize)
	chunkRecs := uint64(t.chunkSize)
	firstChunk := first / chunkRecs
	lastChunk := (first + count - 1) / chunkRecs

	rows, err := t.c.selectChunk.Query(t.id, firstChunk, lastChunk)
	if err != nil {
		return newStorageError("read", t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq      uint64
			chunkLen uint64
			blob     []byte
		)
		if err := rows.Scan(&seq, &chunkLen, &blob); err != nil {
			return newStorageError("read", t.name, err)
		}
		data, err := snappy.Decode(nil, blob)
		if err != nil {
			return newStorageError("read", t.name, err)
		}

		chunkFirst := seq * chunkRecs
		lo := first
		if chunkFirst > lo {
			lo = chunkFirst
		}
		hi := first + count
		if end := chunkFirst + chunkLen; end < hi {
			hi = end
		}
		if hi <= lo {
			continue
		}
		copy(dst[(lo-first)*stride:(hi-first)*stride], data[(lo-chunkFirst)*stride:(hi-chunkFirst)*stride])
	}
	if err := rows.Err(); err != nil {
		return newStorageError("read", t.name, err)
	}
	return nil
}

func (t *sqliteTable) SetAttribute(key, value string) error {
	if t.c.readOnly {
		return ErrReadOnly
	}
	_, err := t.c.db.Exec(`INSERT OR REPLACE INTO attrs (table_id, key, value) VALUES (?, ?, ?)`, t.id, key, value)
	if err != nil {
		return newStorageError("set attribute", t.name, err)
	}
	return nil
}

func (t *sqliteTable) Attribute(key string) (string, bool, error) {
	var value string
	err := t.c.db.QueryRow(`SELECT value FROM attrs WHERE table_id = ? AND key = ?`, t.id, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, newStorageError("read attribute", t.name, err)
	}
	return value, true, nil
}
