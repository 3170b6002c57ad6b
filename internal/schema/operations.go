// Package schema provides the DDL vocabulary revisions use to change the
// database. Operations are bound to the transaction the runner opened, or
// collect statements without executing them in offline mode.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dialect selects the SQL flavour rendered by Operations
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a gorm dialector name onto a supported Dialect
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect: %q", name)
}

// Operations executes DDL against one transaction
type Operations struct {
	db         *gorm.DB
	dialect    Dialect
	offline    bool
	statements []string
	logger     zerolog.Logger
}

// New binds Operations to tx. The dialect is taken from the connection.
func New(tx *gorm.DB, logger zerolog.Logger) (*Operations, error) {
	dialect, err := ParseDialect(tx.Dialector.Name())
	if err != nil {
		return nil, err
	}
	return &Operations{
		db:      tx,
		dialect: dialect,
		logger:  logger,
	}, nil
}

// NewOffline returns Operations that only record the statements they would run
func NewOffline(dialect Dialect, logger zerolog.Logger) *Operations {
	return &Operations{
		dialect: dialect,
		offline: true,
		logger:  logger,
	}
}

// Dialect returns the dialect statements are rendered for
func (o *Operations) Dialect() Dialect {
	return o.dialect
}

// Offline reports whether statements are collected instead of executed
func (o *Operations) Offline() bool {
	return o.offline
}

// DB returns the bound transaction, nil in offline mode. Revisions that need
// data migrations use it; they must check Offline first.
func (o *Operations) DB() *gorm.DB {
	return o.db
}

// Statements returns every statement issued so far, in order
func (o *Operations) Statements() []string {
	out := make([]string, len(o.statements))
	copy(out, o.statements)
	return out
}

func (o *Operations) exec(ctx context.Context, stmt string) error {
	o.statements = append(o.statements, stmt)
	o.logger.Debug().Str("sql", stmt).Bool("offline", o.offline).Msg("Executing DDL")

	if o.offline {
		return nil
	}
	return o.db.WithContext(ctx).Exec(stmt).Error
}

// CreateTable creates name from columns and table constraints
func (o *Operations) CreateTable(ctx context.Context, name string, elements ...Element) error {
	var (
		columns     []Column
		constraints []Element
		primaryKey  *PrimaryKeyConstraint
	)
	for _, el := range elements {
		switch e := el.(type) {
		case Column:
			columns = append(columns, e)
		case PrimaryKeyConstraint:
			pk := e
			primaryKey = &pk
			constraints = append(constraints, e)
		default:
			constraints = append(constraints, e)
		}
	}
	if len(columns) == 0 {
		return fmt.Errorf("create table %s: no columns", name)
	}

	var serialColumn string
	if primaryKey != nil && len(primaryKey.Columns) == 1 {
		serialColumn = primaryKey.Columns[0]
	}

	lines := make([]string, 0, len(columns)+len(constraints))
	for _, c := range columns {
		lines = append(lines, c.render(o.dialect, c.Name == serialColumn))
	}
	for _, c := range constraints {
		switch e := c.(type) {
		case PrimaryKeyConstraint:
			lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(e.Columns)))
		case UniqueConstraint:
			lines = append(lines, fmt.Sprintf("UNIQUE (%s)", quoteList(e.Columns)))
		case ForeignKeyConstraint:
			fk := fmt.Sprintf("FOREIGN KEY(%s) REFERENCES %s (%s)",
				quoteList(e.Columns), quote(e.RefTable), quoteList(e.RefColumns))
			if e.OnDelete != "" {
				fk += " ON DELETE " + strings.ToUpper(e.OnDelete)
			}
			lines = append(lines, fk)
		}
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quote(name), strings.Join(lines, ",\n\t"))
	return o.exec(ctx, stmt)
}

// DropTable drops name
func (o *Operations) DropTable(ctx context.Context, name string) error {
	return o.exec(ctx, fmt.Sprintf("DROP TABLE %s", quote(name)))
}

// AddColumn adds column to table
func (o *Operations) AddColumn(ctx context.Context, table string, column Column) error {
	if column.NotNull && column.ServerDefault == nil && o.dialect == SQLite {
		return fmt.Errorf("add column %s.%s: sqlite cannot add a NOT NULL column without a default", table, column.Name)
	}
	return o.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(table), column.render(o.dialect, false)))
}

// DropColumn drops column from table
func (o *Operations) DropColumn(ctx context.Context, table, column string) error {
	return o.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(table), quote(column)))
}

// CreateIndex creates an index on table over columns
func (o *Operations) CreateIndex(ctx context.Context, name, table string, columns []string, unique bool) error {
	if len(columns) == 0 {
		return fmt.Errorf("create index %s: no columns", name)
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return o.exec(ctx, fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, quote(name), quote(table), quoteList(columns)))
}

// DropIndex drops the named index. Index names are schema wide in both
// dialects, the table is only logged.
func (o *Operations) DropIndex(ctx context.Context, name, table string) error {
	o.logger.Debug().Str("index", name).Str("table", table).Msg("Dropping index")
	return o.exec(ctx, fmt.Sprintf("DROP INDEX %s", quote(name)))
}

// Execute runs a raw statement
func (o *Operations) Execute(ctx context.Context, stmt string) error {
	return o.exec(ctx, stmt)
}
