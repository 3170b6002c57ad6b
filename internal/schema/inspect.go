package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// Snapshot is the observable shape of a database schema
type Snapshot struct {
	Tables map[string]TableInfo `json:"tables"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
	Indexes []IndexInfo  `json:"indexes"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// TableNames returns the snapshot's tables in sorted order
func (s *Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasIndex reports whether table carries the named index
func (s *Snapshot) HasIndex(table, index string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}
	for _, idx := range t.Indexes {
		if idx.Name == index {
			return true
		}
	}
	return false
}

// HasColumn reports whether table carries the named column
func (s *Snapshot) HasColumn(table, column string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

// Inspect reads tables, columns and indexes through the gorm migrator.
// Internal sqlite tables and the names in exclude are skipped. Columns and
// indexes are sorted by name so snapshots compare independently of the
// order objects were created in.
func Inspect(ctx context.Context, db *gorm.DB, exclude ...string) (*Snapshot, error) {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	migrator := db.WithContext(ctx).Migrator()
	tables, err := migrator.GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	snap := &Snapshot{Tables: make(map[string]TableInfo)}
	for _, table := range tables {
		if skip[table] || strings.HasPrefix(table, "sqlite_") {
			continue
		}

		info := TableInfo{Name: table}

		columnTypes, err := migrator.ColumnTypes(table)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
		}
		for _, ct := range columnTypes {
			nullable, _ := ct.Nullable()
			info.Columns = append(info.Columns, ColumnInfo{
				Name:     ct.Name(),
				Type:     strings.ToUpper(ct.DatabaseTypeName()),
				Nullable: nullable,
			})
		}
		sort.Slice(info.Columns, func(i, j int) bool {
			return info.Columns[i].Name < info.Columns[j].Name
		})

		indexes, err := migrator.GetIndexes(table)
		if err != nil {
			return nil, fmt.Errorf("failed to read indexes of %s: %w", table, err)
		}
		for _, idx := range indexes {
			unique, _ := idx.Unique()
			info.Indexes = append(info.Indexes, IndexInfo{
				Name:    idx.Name(),
				Columns: idx.Columns(),
				Unique:  unique,
			})
		}
		sort.Slice(info.Indexes, func(i, j int) bool {
			return info.Indexes[i].Name < info.Indexes[j].Name
		})

		snap.Tables[table] = info
	}

	return snap, nil
}
