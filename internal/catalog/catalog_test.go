package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewAtPath(filepath.Join(t.TempDir(), "catalog_test.duckdb"))
	if err != nil {
		t.Fatalf("NewAtPath: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func addImages(t *testing.T, c *Catalog, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c.Add(Row{
			Path:       fmt.Sprintf("/data/imgs/img_%04d.jpg", i),
			Name:       fmt.Sprintf("img_%04d.jpg", i),
			Width:      640,
			Height:     480,
			SizeBytes:  1000 + int64(i),
			ModifiedAt: 1700000000000 + int64(i),
		})
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := c.LastError(); err != nil {
		t.Fatalf("LastError: %v", err)
	}
}

func TestListPagination(t *testing.T) {
	c := newTestCatalog(t)
	addImages(t, c, 25)

	if c.Len() != 25 {
		t.Fatalf("Len = %d, want 25", c.Len())
	}

	rows, total, err := c.List(context.Background(), ListParams{Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 25 {
		t.Errorf("total = %d, want 25", total)
	}
	if len(rows) != 10 {
		t.Fatalf("page length = %d, want 10", len(rows))
	}
	if rows[0].Index != 10 || rows[0].Name != "img_0010.jpg" {
		t.Errorf("first row = %+v, want index 10", rows[0])
	}
	if rows[9].Index != 19 {
		t.Errorf("last row index = %d, want 19", rows[9].Index)
	}

	// Last, short page.
	rows, _, err = c.List(context.Background(), ListParams{Page: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("List page 3: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("page 3 length = %d, want 5", len(rows))
	}
}

func TestListSearchIsCaseInsensitive(t *testing.T) {
	c := newTestCatalog(t)
	names := []string{"cat_a.jpg", "dog_a.jpg", "CAT_B.PNG", "tree.bmp"}
	for _, name := range names {
		c.Add(Row{Path: "/data/imgs/" + name, Name: name})
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rows, total, err := c.List(context.Background(), ListParams{Search: "cat"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("total = %d, len = %d, want 2 and 2", total, len(rows))
	}
	// Scan order is preserved within the filter.
	if rows[0].Name != "cat_a.jpg" || rows[1].Name != "CAT_B.PNG" {
		t.Errorf("search rows = %q, %q", rows[0].Name, rows[1].Name)
	}

	_, total, err = c.List(context.Background(), ListParams{Search: "zebra"})
	if err != nil {
		t.Fatalf("List miss: %v", err)
	}
	if total != 0 {
		t.Errorf("miss total = %d, want 0", total)
	}
}

func TestIndexAssignmentAcrossFlushBoundary(t *testing.T) {
	c := newTestCatalog(t)
	// Crosses the internal batch size once.
	addImages(t, c, 4100)

	if c.Len() != 4100 {
		t.Fatalf("Len = %d, want 4100", c.Len())
	}

	rows, total, err := c.List(context.Background(), ListParams{Page: 410, PageSize: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4100 {
		t.Errorf("total = %d, want 4100", total)
	}
	if len(rows) != 10 {
		t.Fatalf("page length = %d, want 10", len(rows))
	}
	for i, row := range rows {
		wantIdx := 4090 + i
		if row.Index != wantIdx {
			t.Errorf("row %d index = %d, want %d", i, row.Index, wantIdx)
		}
		if want := fmt.Sprintf("img_%04d.jpg", wantIdx); row.Name != want {
			t.Errorf("row %d name = %q, want %q", i, row.Name, want)
		}
	}
}

func TestFind(t *testing.T) {
	c := newTestCatalog(t)
	c.Add(Row{
		Path:       "/data/imgs/sub/a.png",
		Name:       "a.png",
		RelPath:    "sub/a.png",
		Width:      800,
		Height:     600,
		SizeBytes:  2048,
		ModifiedAt: 1700000000000,
	})
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	row, err := c.Find(context.Background(), "/data/imgs/sub/a.png")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if row.Index != 0 || row.Name != "a.png" || row.RelPath != "sub/a.png" {
		t.Errorf("row = %+v", row)
	}
	if row.Width != 800 || row.Height != 600 || row.SizeBytes != 2048 {
		t.Errorf("row dims = %+v", row)
	}

	_, err = c.Find(context.Background(), "/data/imgs/missing.jpg")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Find missing err = %v, want sql.ErrNoRows", err)
	}
}

func TestAggregate(t *testing.T) {
	c := newTestCatalog(t)
	dims := []struct {
		w, h int
		size int64
	}{
		{100, 50, 10},
		{200, 150, 20},
		{300, 100, 30},
	}
	for i, d := range dims {
		c.Add(Row{
			Path:      fmt.Sprintf("/data/imgs/%d.jpg", i),
			Name:      fmt.Sprintf("%d.jpg", i),
			Width:     d.w,
			Height:    d.h,
			SizeBytes: d.size,
		})
	}
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	s, err := c.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.AvgWidth != 200 || s.AvgHeight != 100 {
		t.Errorf("Avg = %v x %v, want 200 x 100", s.AvgWidth, s.AvgHeight)
	}
	if s.MaxWidth != 300 || s.MaxHeight != 150 {
		t.Errorf("Max = %d x %d, want 300 x 150", s.MaxWidth, s.MaxHeight)
	}
	if s.TotalBytes != 60 {
		t.Errorf("TotalBytes = %d, want 60", s.TotalBytes)
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	rows, total, err := c.List(context.Background(), ListParams{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 0 || len(rows) != 0 {
		t.Errorf("total = %d, len = %d, want 0 and 0", total, len(rows))
	}

	s, err := c.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if s.Count != 0 || s.TotalBytes != 0 {
		t.Errorf("summary = %+v, want zeros", s)
	}
}

func TestCloseRemovesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog_gone.duckdb")
	c, err := NewAtPath(dbPath)
	if err != nil {
		t.Fatalf("NewAtPath: %v", err)
	}
	c.Add(Row{Path: "/data/imgs/a.jpg", Name: "a.jpg"})
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("catalog file still present after Close: %v", err)
	}
}
