package storage

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/rohankatakam/lfca/internal/models"
)

// Columnar is the bulk half of the artifact store: zstd-compressed
// struct-of-arrays files per logical table, read back whole by the edge
// builder and insight passes.
type Columnar struct {
	dir string
}

// NewColumnar opens the columnar directory, creating it if needed.
func NewColumnar(dir string) (*Columnar, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create columnar directory: %w", err)
	}
	return &Columnar{dir: dir}, nil
}

// CommitColumns is the commits table in column-major form.
type CommitColumns struct {
	OIDs         []string
	AuthorNames  []string
	AuthorEmails []string
	AuthoredTS   []int64
	CommitterTS  []int64
	IsMerge      []bool
	ParentCounts []int
	Subjects     []string
}

// Append adds one row.
func (c *CommitColumns) Append(r models.CommitRecord) {
	c.OIDs = append(c.OIDs, r.OID)
	c.AuthorNames = append(c.AuthorNames, r.AuthorName)
	c.AuthorEmails = append(c.AuthorEmails, r.AuthorEmail)
	c.AuthoredTS = append(c.AuthoredTS, r.AuthoredTS)
	c.CommitterTS = append(c.CommitterTS, r.CommitterTS)
	c.IsMerge = append(c.IsMerge, r.IsMerge)
	c.ParentCounts = append(c.ParentCounts, r.ParentCount)
	c.Subjects = append(c.Subjects, r.Subject)
}

// Len returns the row count.
func (c *CommitColumns) Len() int { return len(c.OIDs) }

// Row reconstructs row i.
func (c *CommitColumns) Row(i int) models.CommitRecord {
	return models.CommitRecord{
		OID:         c.OIDs[i],
		AuthorName:  c.AuthorNames[i],
		AuthorEmail: c.AuthorEmails[i],
		AuthoredTS:  c.AuthoredTS[i],
		CommitterTS: c.CommitterTS[i],
		IsMerge:     c.IsMerge[i],
		ParentCount: c.ParentCounts[i],
		Subject:     c.Subjects[i],
	}
}

// ChangeColumns is the changes table in column-major form.
type ChangeColumns struct {
	CommitOIDs   []string
	FileIDs      []int64
	Paths        []string
	Statuses     []string
	OldPaths     []string
	CommitTS     []int64
	LinesAdded   []int64
	LinesDeleted []int64
}

// Append adds one row.
func (c *ChangeColumns) Append(r models.ChangeRecord) {
	c.CommitOIDs = append(c.CommitOIDs, r.CommitOID)
	c.FileIDs = append(c.FileIDs, r.FileID)
	c.Paths = append(c.Paths, r.Path)
	c.Statuses = append(c.Statuses, r.Status)
	c.OldPaths = append(c.OldPaths, r.OldPath)
	c.CommitTS = append(c.CommitTS, r.CommitTS)
	c.LinesAdded = append(c.LinesAdded, r.LinesAdded)
	c.LinesDeleted = append(c.LinesDeleted, r.LinesDeleted)
}

// Len returns the row count.
func (c *ChangeColumns) Len() int { return len(c.CommitOIDs) }

// Row reconstructs row i.
func (c *ChangeColumns) Row(i int) models.ChangeRecord {
	return models.ChangeRecord{
		CommitOID:    c.CommitOIDs[i],
		FileID:       c.FileIDs[i],
		Path:         c.Paths[i],
		Status:       c.Statuses[i],
		OldPath:      c.OldPaths[i],
		CommitTS:     c.CommitTS[i],
		LinesAdded:   c.LinesAdded[i],
		LinesDeleted: c.LinesDeleted[i],
	}
}

func (c *Columnar) tablePath(name string) string {
	return filepath.Join(c.dir, name+".col.zst")
}

// writeTable serializes the column set through a zstd writer, atomically
// replacing the previous table file.
func (c *Columnar) writeTable(name string, columns interface{}) error {
	tmpPath := c.tablePath(name) + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create columnar table %s: %w", name, err)
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("open zstd writer: %w", err)
	}

	enc := gob.NewEncoder(zw)
	if err := enc.Encode(columns); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode columnar table %s: %w", name, err)
	}

	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush zstd writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, c.tablePath(name))
}

func (c *Columnar) readTable(name string, columns interface{}) error {
	f, err := os.Open(c.tablePath(name))
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open zstd reader: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	if err := dec.Decode(columns); err != nil {
		return fmt.Errorf("decode columnar table %s: %w", name, err)
	}
	return nil
}

// WriteCommits persists the commits table.
func (c *Columnar) WriteCommits(columns *CommitColumns) error {
	return c.writeTable("commits", columns)
}

// ReadCommits loads the commits table. A missing table reads as empty.
func (c *Columnar) ReadCommits() (*CommitColumns, error) {
	var columns CommitColumns
	if err := c.readTable("commits", &columns); err != nil {
		if os.IsNotExist(err) {
			return &columns, nil
		}
		return nil, err
	}
	return &columns, nil
}

// WriteChanges persists the changes table.
func (c *Columnar) WriteChanges(columns *ChangeColumns) error {
	return c.writeTable("changes", columns)
}

// ReadChanges loads the changes table. A missing table reads as empty.
func (c *Columnar) ReadChanges() (*ChangeColumns, error) {
	var columns ChangeColumns
	if err := c.readTable("changes", &columns); err != nil {
		if os.IsNotExist(err) {
			return &columns, nil
		}
		return nil, err
	}
	return &columns, nil
}
