package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ksred/revchain/internal/utils"
)

var (
	// ErrChain is returned when the registered revisions do not form one
	// linear chain
	ErrChain = errors.New("invalid revision chain")

	// ErrUnknownRevision is returned for references that match no revision
	ErrUnknownRevision = errors.New("unknown revision")

	// ErrMigration is returned when a revision operation fails
	ErrMigration = errors.New("migration failed")

	// ErrWrongDirection is returned when an upgrade target is behind the
	// marker or a downgrade target is ahead of it
	ErrWrongDirection = errors.New("target is in the wrong direction")

	// ErrMarkerMoved is returned when the marker no longer holds the value
	// read at the start of the call
	ErrMarkerMoved = fmt.Errorf("schema version marker changed during the run: %w", utils.ErrConflict)

	// ErrLockTimeout is returned when the migration lock cannot be acquired in time
	ErrLockTimeout = fmt.Errorf("timed out acquiring the migration lock: %w", utils.ErrConflict)

	// ErrLockLost is returned when a held lock expired or was taken over
	// while the run was still going
	ErrLockLost = fmt.Errorf("migration lock lost during the run: %w", utils.ErrConflict)

	// ErrNoDatabase is returned by calls that need the marker when the runner
	// was built without a connection
	ErrNoDatabase = errors.New("no database connection, only from:to SQL rendering is available")

	// ErrCorruptMarker is returned when the marker table holds more than one row
	ErrCorruptMarker = errors.New("schema version table holds more than one row")
)

// Chain error kinds
const (
	ChainEmptyID            = "empty_id"
	ChainDuplicate          = "duplicate"
	ChainMissingPredecessor = "missing_predecessor"
	ChainBranch             = "branch"
	ChainCycle              = "cycle"
	ChainMissingOperation   = "missing_operation"
)

// ChainError describes why a set of revisions cannot be ordered
type ChainError struct {
	Kind      string
	Revisions []string
	Detail    string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("invalid revision chain (%s): %s", e.Kind, e.Detail)
}

func (e *ChainError) Unwrap() error {
	return ErrChain
}

// UnknownRevisionError is returned when a reference resolves to no revision,
// or to more than one.
type UnknownRevisionError struct {
	Ref        string
	Candidates []string
}

func (e *UnknownRevisionError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("ambiguous revision %q matches %s", e.Ref, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("unknown revision %q", e.Ref)
}

func (e *UnknownRevisionError) Unwrap() []error {
	return []error{ErrUnknownRevision, utils.ErrNotFound}
}

// DirectionError is returned before any mutation when the target lies on the
// other side of the marker
type DirectionError struct {
	Direction Direction
	Current   string
	Target    string
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("cannot %s from %s to %s: %v", e.Direction, displayRevision(e.Current), displayRevision(e.Target), ErrWrongDirection)
}

func (e *DirectionError) Unwrap() []error {
	return []error{ErrWrongDirection, utils.ErrValidation}
}

// MigrationError reports the revision whose operation failed. Current is the
// marker after the failure; in per-revision mode it includes every revision
// in Applied.
type MigrationError struct {
	Revision  string
	Direction Direction
	Current   string
	Applied   []string
	Cause     error
}

func (e *MigrationError) Error() string {
	msg := fmt.Sprintf("%s of revision %s failed: %v (database at %s)",
		e.Direction, e.Revision, e.Cause, displayRevision(e.Current))
	if code := e.SQLState(); code != "" {
		msg += " [SQLSTATE " + code + "]"
	}
	return msg
}

func (e *MigrationError) Unwrap() []error {
	return []error{ErrMigration, e.Cause}
}

// SQLState returns the PostgreSQL error code of the cause, if any
func (e *MigrationError) SQLState() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Cause, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func displayRevision(id string) string {
	if id == "" {
		return Base
	}
	return id
}
