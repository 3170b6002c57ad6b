package schema

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ColumnType is a portable column type rendered per dialect
type ColumnType struct {
	kind     string
	length   int
	timezone bool
}

func Integer() ColumnType    { return ColumnType{kind: "integer"} }
func BigInteger() ColumnType { return ColumnType{kind: "biginteger"} }
func Text() ColumnType       { return ColumnType{kind: "text"} }
func Boolean() ColumnType    { return ColumnType{kind: "boolean"} }

// String is a VARCHAR column. A zero length leaves it unbounded.
func String(length int) ColumnType {
	return ColumnType{kind: "string", length: length}
}

// Timestamp is a date and time column, optionally zone aware
func Timestamp(withTimezone bool) ColumnType {
	return ColumnType{kind: "timestamp", timezone: withTimezone}
}

func (t ColumnType) render(d Dialect) string {
	switch t.kind {
	case "integer":
		return "INTEGER"
	case "biginteger":
		return "BIGINT"
	case "text":
		return "TEXT"
	case "boolean":
		return "BOOLEAN"
	case "string":
		if t.length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.length)
		}
		return "VARCHAR"
	case "timestamp":
		if d == SQLite {
			return "TIMESTAMP"
		}
		if t.timezone {
			return "TIMESTAMP WITH TIME ZONE"
		}
		return "TIMESTAMP WITHOUT TIME ZONE"
	}
	return strings.ToUpper(t.kind)
}

// serial reports the auto-incrementing form of an integer primary key
func (t ColumnType) serial(d Dialect) (string, bool) {
	if d != Postgres {
		return "", false
	}
	switch t.kind {
	case "integer":
		return "SERIAL", true
	case "biginteger":
		return "BIGSERIAL", true
	}
	return "", false
}

// Default is a server side column default
type Default struct {
	now     bool
	literal string
}

// Now defaults the column to the current timestamp
func Now() *Default { return &Default{now: true} }

// Literal defaults the column to a SQL expression passed through verbatim
func Literal(expr string) *Default { return &Default{literal: expr} }

func (d *Default) render(dialect Dialect) string {
	if d.now {
		if dialect == SQLite {
			return "CURRENT_TIMESTAMP"
		}
		return "now()"
	}
	return d.literal
}

// Element is anything that can appear inside CREATE TABLE
type Element interface {
	element()
}

// Column describes a table column. Columns are nullable unless NotNull is set.
type Column struct {
	Name          string
	Type          ColumnType
	NotNull       bool
	ServerDefault *Default
}

// ColumnOption customises a Column
type ColumnOption func(*Column)

// NotNull marks the column NOT NULL
func NotNull() ColumnOption {
	return func(c *Column) { c.NotNull = true }
}

// ServerDefault attaches a server side default
func ServerDefault(d *Default) ColumnOption {
	return func(c *Column) { c.ServerDefault = d }
}

// NewColumn builds a Column
func NewColumn(name string, typ ColumnType, opts ...ColumnOption) Column {
	c := Column{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (Column) element() {}

func (c Column) render(d Dialect, serial bool) string {
	typ := c.Type.render(d)
	if serial {
		if s, ok := c.Type.serial(d); ok {
			typ = s
		}
	}

	var b strings.Builder
	b.WriteString(quote(c.Name))
	b.WriteString(" ")
	b.WriteString(typ)
	if c.ServerDefault != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.ServerDefault.render(d))
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// PrimaryKeyConstraint is a table level PRIMARY KEY
type PrimaryKeyConstraint struct {
	Columns []string
}

func PrimaryKey(columns ...string) PrimaryKeyConstraint {
	return PrimaryKeyConstraint{Columns: columns}
}

func (PrimaryKeyConstraint) element() {}

// ForeignKeyConstraint is a table level FOREIGN KEY
type ForeignKeyConstraint struct {
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
}

func ForeignKey(columns []string, refTable string, refColumns []string, onDelete string) ForeignKeyConstraint {
	return ForeignKeyConstraint{
		Columns:    columns,
		RefTable:   refTable,
		RefColumns: refColumns,
		OnDelete:   onDelete,
	}
}

func (ForeignKeyConstraint) element() {}

// UniqueConstraint is a table level UNIQUE
type UniqueConstraint struct {
	Columns []string
}

func Unique(columns ...string) UniqueConstraint {
	return UniqueConstraint{Columns: columns}
}

func (UniqueConstraint) element() {}

// IndexName follows the ix_<table>_<column> naming convention
func IndexName(table string, columns ...string) string {
	return "ix_" + table + "_" + strings.Join(columns, "_")
}

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}
