// Package catalog maintains the per-session image listing in a temporary
// DuckDB file. Scanned folders can hold tens of thousands of images;
// keeping the listing in DuckDB keeps pagination and name search cheap
// without holding every row in process memory.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcboeker/go-duckdb"
)

// Row is one catalogued image. Index is the position in scan order and
// doubles as the primary key.
type Row struct {
	Index      int    `json:"index"`
	Path       string `json:"path"`
	Name       string `json:"name"`
	RelPath    string `json:"relPath,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SizeBytes  int64  `json:"sizeBytes"`
	ModifiedAt int64  `json:"modifiedAt"` // Unix milliseconds
}

// Catalog stores the image listing for one session in a DuckDB file.
// Rows are batched through the native Appender API; Finalize flushes the
// tail batch and creates the search index.
type Catalog struct {
	db        *sql.DB
	dbPath    string
	rowCount  int
	batchSize int
	batch     []Row
	lastError error // stores the last flush error

	// Cache for total counts by filter to avoid repeated COUNT queries
	countCache   map[string]int
	countCacheMu sync.RWMutex

	// Semaphore to limit concurrent queries (prevents memory spikes
	// while the frontend pages through the image strip)
	querySem chan struct{}
}

// New creates a catalog database for the given session in tempDir.
func New(tempDir string, sessionID string) (*Catalog, error) {
	dbPath := filepath.Join(tempDir, fmt.Sprintf("catalog_%s.duckdb", sessionID))
	return NewAtPath(dbPath)
}

// NewAtPath creates a catalog database at a specific path.
func NewAtPath(dbPath string) (*Catalog, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE images (
			idx        INTEGER PRIMARY KEY,
			path       VARCHAR NOT NULL,
			name       VARCHAR NOT NULL,
			rel_path   VARCHAR,
			width      INTEGER,
			height     INTEGER,
			size_bytes BIGINT,
			mod_ms     BIGINT
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create images table: %w", err)
	}

	// NOTE: The name index is created in Finalize() after the scan
	// completes; indexing during inserts slows the appender down.
	return &Catalog{
		db:         db,
		dbPath:     dbPath,
		batchSize:  4096,
		batch:      make([]Row, 0, 4096),
		countCache: make(map[string]int),
		querySem:   make(chan struct{}, 3), // Max 3 concurrent queries
	}, nil
}

// Add queues a row for insertion. The row's Index is assigned from the
// insertion order, overwriting whatever the caller set. Flush failures
// surface through LastError.
func (c *Catalog) Add(row Row) {
	c.batch = append(c.batch, row)
	c.rowCount++

	if len(c.batch) >= c.batchSize {
		if err := c.flushBatch(); err != nil {
			c.lastError = err
			fmt.Printf("[Catalog] flush error: %v\n", err)
		}
	}
}

// LastError returns the last error that occurred during a batch flush.
func (c *Catalog) LastError() error {
	return c.lastError
}

// flushBatch writes the current batch using the native Appender API.
func (c *Catalog) flushBatch() error {
	if len(c.batch) == 0 {
		return nil
	}

	// Get a single connection from the pool
	conn, err := c.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	// Access the raw driver connection to use the Appender API
	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "images")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseIdx := c.rowCount - len(c.batch)
		for i, row := range c.batch {
			err := appender.AppendRow(
				int32(baseIdx+i),
				row.Path,
				row.Name,
				row.RelPath,
				int32(row.Width),
				int32(row.Height),
				row.SizeBytes,
				row.ModifiedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	c.batch = c.batch[:0]
	return nil
}

// Finalize flushes any queued rows and creates the name index.
func (c *Catalog) Finalize() error {
	if err := c.flushBatch(); err != nil {
		return err
	}

	if _, err := c.db.Exec("CREATE INDEX idx_name ON images(name)"); err != nil {
		return fmt.Errorf("idx_name creation failed: %w", err)
	}
	return nil
}

// Len returns the number of catalogued images.
func (c *Catalog) Len() int {
	return c.rowCount
}

// ListParams filters and pages the image listing.
type ListParams struct {
	Search   string
	Page     int
	PageSize int
}

const defaultPageSize = 200

// List returns one page of the listing in scan order plus the total row
// count for the filter. Search matches image names case-insensitively.
func (c *Catalog) List(ctx context.Context, params ListParams) ([]Row, int, error) {
	// Acquire semaphore to limit concurrent queries
	select {
	case c.querySem <- struct{}{}:
		defer func() { <-c.querySem }()
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	where := ""
	var args []interface{}
	if params.Search != "" {
		where = "name ILIKE ?"
		args = append(args, "%"+params.Search+"%")
	}

	// Check cache for total count
	cacheKey := params.Search
	c.countCacheMu.RLock()
	total, found := c.countCache[cacheKey]
	c.countCacheMu.RUnlock()

	if !found {
		countQuery := "SELECT COUNT(*) FROM images"
		if where != "" {
			countQuery += " WHERE " + where
		}
		if err := c.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count query failed: %w", err)
		}
		c.countCacheMu.Lock()
		c.countCache[cacheKey] = total
		c.countCacheMu.Unlock()
	}

	if total == 0 {
		return []Row{}, 0, nil
	}

	offset := (page - 1) * pageSize
	query := "SELECT idx, path, name, rel_path, width, height, size_bytes, mod_ms FROM images"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY idx LIMIT %d OFFSET %d", pageSize, offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, pageSize)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// Find returns the catalogued row for an absolute image path.
// sql.ErrNoRows is returned when the path is not in the catalog.
func (c *Catalog) Find(ctx context.Context, path string) (Row, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT idx, path, name, rel_path, width, height, size_bytes, mod_ms
		FROM images WHERE path = ?
	`, path)
	return scanRow(row)
}

// Summary aggregates the catalog for session statistics.
type Summary struct {
	Count      int     `json:"count"`
	AvgWidth   float64 `json:"avgWidth"`
	AvgHeight  float64 `json:"avgHeight"`
	MaxWidth   int     `json:"maxWidth"`
	MaxHeight  int     `json:"maxHeight"`
	TotalBytes int64   `json:"totalBytes"`
}

// Aggregate computes listing-wide numbers in a single query.
func (c *Catalog) Aggregate(ctx context.Context) (Summary, error) {
	// Acquire semaphore to limit concurrent queries
	select {
	case c.querySem <- struct{}{}:
		defer func() { <-c.querySem }()
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	var s Summary
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(width), 0),
		       COALESCE(AVG(height), 0),
		       COALESCE(MAX(width), 0),
		       COALESCE(MAX(height), 0),
		       COALESCE(SUM(size_bytes), 0)
		FROM images
	`).Scan(&s.Count, &s.AvgWidth, &s.AvgHeight, &s.MaxWidth, &s.MaxHeight, &s.TotalBytes)
	if err != nil {
		return Summary{}, fmt.Errorf("aggregate query failed: %w", err)
	}
	return s, nil
}

// Close closes the database and removes the catalog file.
func (c *Catalog) Close() error {
	if c.db != nil {
		c.db.Close()
	}
	if c.dbPath != "" {
		os.Remove(c.dbPath)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(s scanner) (Row, error) {
	var idx int
	var path, name string
	var relPath sql.NullString
	var width, height sql.NullInt32
	var sizeBytes, modMs sql.NullInt64

	if err := s.Scan(&idx, &path, &name, &relPath, &width, &height, &sizeBytes, &modMs); err != nil {
		return Row{}, err
	}

	return Row{
		Index:      idx,
		Path:       path,
		Name:       name,
		RelPath:    relPath.String,
		Width:      int(width.Int32),
		Height:     int(height.Int32),
		SizeBytes:  sizeBytes.Int64,
		ModifiedAt: modMs.Int64,
	}, nil
}
