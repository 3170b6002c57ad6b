package migration

import (
	"context"
	"fmt"

	"github.com/ksred/revchain/internal/models"
	"github.com/ksred/revchain/internal/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store reads and writes the marker and history tables
type Store struct {
	versionTable string
	historyTable string
}

// NewStore returns a Store for the given table names
func NewStore(versionTable, historyTable string) *Store {
	if versionTable == "" {
		versionTable = models.SchemaVersion{}.TableName()
	}
	if historyTable == "" {
		historyTable = models.MigrationHistory{}.TableName()
	}
	return &Store{versionTable: versionTable, historyTable: historyTable}
}

// VersionTable returns the marker table name
func (s *Store) VersionTable() string {
	return s.versionTable
}

// HistoryTable returns the history table name
func (s *Store) HistoryTable() string {
	return s.historyTable
}

// EnsureTables creates the marker and history tables when missing
func (s *Store) EnsureTables(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return ErrNoDatabase
	}
	db = db.WithContext(ctx)
	if err := db.Table(s.versionTable).AutoMigrate(&models.SchemaVersion{}); err != nil {
		return utils.WrapDatabaseError("create version table", err)
	}
	if err := db.Table(s.historyTable).AutoMigrate(&models.MigrationHistory{}); err != nil {
		return utils.WrapDatabaseError("create history table", err)
	}
	return nil
}

// Current returns the marker, empty when nothing is applied or the marker
// table does not exist yet
func (s *Store) Current(ctx context.Context, db *gorm.DB) (string, error) {
	if db == nil {
		return "", ErrNoDatabase
	}
	db = db.WithContext(ctx)
	if !db.Migrator().HasTable(s.versionTable) {
		return "", nil
	}

	var rows []models.SchemaVersion
	if err := db.Table(s.versionTable).Limit(2).Find(&rows).Error; err != nil {
		return "", utils.WrapDatabaseError("read schema version", err)
	}

	switch len(rows) {
	case 0:
		return "", nil
	case 1:
		return rows[0].VersionNum, nil
	}
	return "", ErrCorruptMarker
}

// Set moves the marker from expected to next. The write only happens if the
// marker still holds expected; otherwise ErrMarkerMoved is returned.
func (s *Store) Set(ctx context.Context, tx *gorm.DB, expected, next string) error {
	tx = tx.WithContext(ctx)

	var result *gorm.DB
	switch {
	case expected == next:
		return nil
	case expected == "":
		table := pq.QuoteIdentifier(s.versionTable)
		result = tx.Exec(
			fmt.Sprintf("INSERT INTO %s (version_num) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM %s)", table, table),
			next,
		)
	case next == "":
		result = tx.Table(s.versionTable).
			Where("version_num = ?", expected).
			Delete(&models.SchemaVersion{})
	default:
		result = tx.Table(s.versionTable).
			Where("version_num = ?", expected).
			Update("version_num", next)
	}

	if result.Error != nil {
		return utils.WrapDatabaseError("write schema version", result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("expected %s, moving to %s: %w", displayRevision(expected), displayRevision(next), ErrMarkerMoved)
	}
	return nil
}

// Record appends a history entry
func (s *Store) Record(ctx context.Context, tx *gorm.DB, entry *models.MigrationHistory) error {
	if err := tx.WithContext(ctx).Table(s.historyTable).Create(entry).Error; err != nil {
		return utils.WrapDatabaseError("record migration history", err)
	}
	return nil
}

// History returns the newest entries first. A limit of zero or less returns
// everything.
func (s *Store) History(ctx context.Context, db *gorm.DB, limit int) ([]models.MigrationHistory, error) {
	if db == nil {
		return nil, ErrNoDatabase
	}
	db = db.WithContext(ctx)
	if !db.Migrator().HasTable(s.historyTable) {
		return []models.MigrationHistory{}, nil
	}

	query := db.Table(s.historyTable).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.MigrationHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, utils.WrapDatabaseError("read migration history", err)
	}
	return entries, nil
}
