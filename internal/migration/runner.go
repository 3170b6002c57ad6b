package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/revchain/internal/models"
	"github.com/ksred/revchain/internal/schema"
	"github.com/ksred/revchain/internal/utils"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TransactionMode controls how steps are grouped into transactions
type TransactionMode string

const (
	// PerRevision commits each step on its own. A failure keeps the steps
	// before it.
	PerRevision TransactionMode = "per-revision"
	// Single runs the whole path in one transaction
	Single TransactionMode = "single"
)

// Stamped is the history direction of a marker write that ran no operations
const Stamped Direction = "stamp"

// Runner applies revisions from a Registry to one database
type Runner struct {
	db          *gorm.DB
	registry    *Registry
	store       *Store
	locker      Locker
	lockKey     string
	lockTimeout time.Duration
	mode        TransactionMode
	metrics     *Metrics
	dialect     schema.Dialect
	logger      zerolog.Logger
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithLocker sets the lock guarding runs and the key it is taken under
func WithLocker(locker Locker, key string) RunnerOption {
	return func(r *Runner) {
		r.locker = locker
		if key != "" {
			r.lockKey = key
		}
	}
}

// WithLockTimeout bounds the wait for the lock. Zero waits as long as the
// caller's context allows.
func WithLockTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		r.lockTimeout = timeout
	}
}

// WithTransactionMode selects per-revision or single transactions
func WithTransactionMode(mode TransactionMode) RunnerOption {
	return func(r *Runner) {
		r.mode = mode
	}
}

// WithStore overrides the marker and history tables
func WithStore(store *Store) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMetrics records runs on m
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithDialect fixes the dialect offline SQL is rendered in. Without it the
// dialect of db is used.
func WithDialect(dialect schema.Dialect) RunnerOption {
	return func(r *Runner) {
		r.dialect = dialect
	}
}

// NewRunner creates a runner over db. Without options it takes an in-process
// lock, uses the default tables and commits per revision.
func NewRunner(db *gorm.DB, registry *Registry, logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		db:          db,
		registry:    registry,
		store:       NewStore("", ""),
		locker:      NewLocalLock(),
		lockKey:     "revchain",
		lockTimeout: 30 * time.Second,
		mode:        PerRevision,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the chain the runner applies
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Mode returns the transaction mode
func (r *Runner) Mode() TransactionMode {
	return r.mode
}

// Result describes a completed or partially completed run
type Result struct {
	RunID     string        `json:"run_id"`
	Direction Direction     `json:"direction"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Target    string        `json:"target"`
	Applied   []string      `json:"applied"`
	Duration  time.Duration `json:"duration"`
}

// Status compares the marker with the registry
type Status struct {
	Current  string     `json:"current"`
	Head     string     `json:"head"`
	Applied  []Revision `json:"applied"`
	Pending  []Revision `json:"pending"`
	UpToDate bool       `json:"up_to_date"`
}

// Current returns the marker
func (r *Runner) Current(ctx context.Context) (string, error) {
	return r.store.Current(ctx, r.db)
}

// Status reads the marker without taking the lock
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	current, err := r.currentKnown(ctx)
	if err != nil {
		return nil, err
	}

	applied, err := r.registry.Applied(current)
	if err != nil {
		return nil, err
	}
	pending, err := r.registry.Pending(current)
	if err != nil {
		return nil, err
	}
	r.metrics.observePosition(len(applied), len(pending))

	return &Status{
		Current:  current,
		Head:     r.registry.Head(),
		Applied:  applied,
		Pending:  pending,
		UpToDate: len(pending) == 0,
	}, nil
}

// History returns the newest history entries first
func (r *Runner) History(ctx context.Context, limit int) ([]models.MigrationHistory, error) {
	return r.store.History(ctx, r.db, limit)
}

// Plan returns the steps an upgrade or downgrade to target would run
func (r *Runner) Plan(ctx context.Context, direction Direction, target string) (Plan, error) {
	current, err := r.currentKnown(ctx)
	if err != nil {
		return Plan{}, err
	}
	return r.plan(direction, current, target)
}

func (r *Runner) plan(direction Direction, current, target string) (Plan, error) {
	if direction != Up && direction != Down {
		return Plan{}, utils.WrapValidationError("direction", fmt.Sprintf("must be %s or %s", Up, Down))
	}

	targetID, err := r.registry.Resolve(target, current)
	if err != nil {
		return Plan{}, err
	}

	plan, err := r.registry.Path(current, targetID)
	if err != nil {
		return Plan{}, err
	}
	if !plan.Empty() && plan.Direction != direction {
		return Plan{}, &DirectionError{Direction: direction, Current: current, Target: targetID}
	}
	plan.Direction = direction
	return plan, nil
}

// Upgrade applies revisions forward until target is the marker
func (r *Runner) Upgrade(ctx context.Context, target string) (*Result, error) {
	return r.migrate(ctx, Up, target)
}

// Downgrade reverts revisions until target is the marker
func (r *Runner) Downgrade(ctx context.Context, target string) (*Result, error) {
	return r.migrate(ctx, Down, target)
}

func (r *Runner) migrate(ctx context.Context, direction Direction, target string) (res *Result, err error) {
	defer func() { r.metrics.observeRun(string(direction), err) }()

	ctx, release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.store.EnsureTables(ctx, r.db); err != nil {
		return nil, err
	}

	current, err := r.currentKnown(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := r.plan(direction, current, target)
	if err != nil {
		return nil, err
	}

	res = &Result{
		RunID:     uuid.NewString(),
		Direction: direction,
		From:      current,
		To:        current,
		Target:    plan.To,
		Applied:   []string{},
	}

	logger := r.logger.With().
		Str("run_id", res.RunID).
		Str("direction", string(direction)).
		Str("from", displayRevision(current)).
		Str("target", displayRevision(plan.To)).
		Logger()

	if plan.Empty() {
		logger.Info().Msg("Database already at target revision")
		return res, nil
	}

	logger.Info().
		Int("steps", len(plan.Steps)).
		Str("mode", string(r.mode)).
		Msg("Starting migration run")

	start := time.Now()
	if r.mode == Single {
		err = r.runSingle(ctx, res, plan)
	} else {
		err = r.runPerRevision(ctx, res, plan)
	}
	res.Duration = time.Since(start)

	if err != nil {
		logger.Error().
			Err(err).
			Str("current", displayRevision(res.To)).
			Strs("applied", res.Applied).
			Msg("Migration run failed")
		return res, err
	}

	logger.Info().
		Strs("applied", res.Applied).
		Dur("duration", res.Duration).
		Msg("Migration run completed")
	return res, nil
}

func (r *Runner) runPerRevision(ctx context.Context, res *Result, plan Plan) error {
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return r.stepError(ctx, res, step, err)
		}

		expected := res.To
		start := time.Now()
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.runStep(ctx, tx, res.RunID, step, expected, start)
		})
		r.metrics.observeStep(step, time.Since(start), err)
		if err != nil {
			return r.stepError(ctx, res, step, err)
		}

		res.To = step.To
		res.Applied = append(res.Applied, step.Revision)
	}
	return nil
}

func (r *Runner) runSingle(ctx context.Context, res *Result, plan Plan) error {
	var (
		failed  Step
		applied []string
	)
	marker := res.From

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range plan.Steps {
			failed = step
			start := time.Now()
			err := r.runStep(ctx, tx, res.RunID, step, marker, start)
			r.metrics.observeStep(step, time.Since(start), err)
			if err != nil {
				return err
			}
			marker = step.To
			applied = append(applied, step.Revision)
		}
		return nil
	})
	if err != nil {
		// Nothing of the path survived the rollback
		return r.stepError(ctx, res, failed, err)
	}

	res.To = marker
	res.Applied = applied
	return nil
}

func (r *Runner) runStep(ctx context.Context, tx *gorm.DB, runID string, step Step, expected string, start time.Time) error {
	logger := utils.WithRevision(r.logger, step.Revision, string(step.Direction)).
		With().Str("run_id", runID).Logger()

	ops, err := schema.New(tx, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("from", displayRevision(step.From)).
		Str("to", displayRevision(step.To)).
		Str("message", step.Message).
		Msg("Running revision")

	if err := step.Operation(ctx, ops, logger); err != nil {
		return err
	}

	if err := r.store.Set(ctx, tx, expected, step.To); err != nil {
		return err
	}

	return r.store.Record(ctx, tx, &models.MigrationHistory{
		RunID:        runID,
		Revision:     step.Revision,
		Direction:    string(step.Direction),
		FromRevision: step.From,
		ToRevision:   step.To,
		DurationMS:   time.Since(start).Milliseconds(),
		AppliedAt:    time.Now().UTC(),
	})
}

func (r *Runner) stepError(ctx context.Context, res *Result, step Step, cause error) error {
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrLockLost) && !errors.Is(cause, ErrLockLost) {
		cause = fmt.Errorf("%w: %w", ErrLockLost, cause)
	}
	return &MigrationError{
		Revision:  step.Revision,
		Direction: step.Direction,
		Current:   res.To,
		Applied:   append([]string{}, res.Applied...),
		Cause:     cause,
	}
}

// Stamp sets the marker to target without running any operations
func (r *Runner) Stamp(ctx context.Context, target string) (res *Result, err error) {
	defer func() { r.metrics.observeRun(string(Stamped), err) }()

	ctx, release, err := r.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.store.EnsureTables(ctx, r.db); err != nil {
		return nil, err
	}

	// An unknown marker is exactly what stamp is used to repair
	current, err := r.store.Current(ctx, r.db)
	if err != nil {
		return nil, err
	}

	resolveFrom := current
	if !r.registry.Contains(current) {
		resolveFrom = ""
	}
	targetID, err := r.registry.Resolve(target, resolveFrom)
	if err != nil {
		return nil, err
	}

	res = &Result{
		RunID:     uuid.NewString(),
		Direction: Stamped,
		From:      current,
		To:        targetID,
		Target:    targetID,
		Applied:   []string{},
	}
	if current == targetID {
		return res, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.store.Set(ctx, tx, current, targetID); err != nil {
			return err
		}
		return r.store.Record(ctx, tx, &models.MigrationHistory{
			RunID:        res.RunID,
			Revision:     targetID,
			Direction:    string(Stamped),
			FromRevision: current,
			ToRevision:   targetID,
			AppliedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("run_id", res.RunID).
		Str("from", displayRevision(current)).
		Str("to", displayRevision(targetID)).
		Msg("Stamped schema version")
	return res, nil
}

// SQL renders the statements an upgrade or downgrade would execute without
// touching the schema. target may be a "from:to" range, otherwise the path
// starts at the marker.
func (r *Runner) SQL(ctx context.Context, direction Direction, target string) ([]string, error) {
	var (
		current string
		err     error
	)
	if from, to, ok := strings.Cut(target, ":"); ok {
		current, err = r.registry.Resolve(from, "")
		if err != nil {
			return nil, err
		}
		target = to
	} else {
		current, err = r.currentKnown(ctx)
		if err != nil {
			return nil, err
		}
	}

	plan, err := r.plan(direction, current, target)
	if err != nil {
		return nil, err
	}

	dialect, err := r.sqlDialect()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, step := range plan.Steps {
		logger := utils.WithRevision(r.logger, step.Revision, string(step.Direction))
		ops := schema.NewOffline(dialect, logger)
		if err := step.Operation(ctx, ops, logger); err != nil {
			return nil, &MigrationError{Revision: step.Revision, Direction: step.Direction, Current: current, Applied: []string{}, Cause: err}
		}

		out = append(out, fmt.Sprintf("-- Running %s %s -> %s", step.Direction, displayRevision(step.From), displayRevision(step.To)))
		out = append(out, ops.Statements()...)
		out = append(out, r.markerSQL(step.From, step.To))
	}
	return out, nil
}

func (r *Runner) sqlDialect() (schema.Dialect, error) {
	if r.dialect != "" {
		return r.dialect, nil
	}
	if r.db == nil {
		return "", ErrNoDatabase
	}
	return schema.ParseDialect(r.db.Dialector.Name())
}

func (r *Runner) markerSQL(from, to string) string {
	table := pq.QuoteIdentifier(r.store.VersionTable())
	switch {
	case from == "":
		return fmt.Sprintf("INSERT INTO %s (version_num) VALUES (%s)", table, pq.QuoteLiteral(to))
	case to == "":
		return fmt.Sprintf("DELETE FROM %s WHERE version_num = %s", table, pq.QuoteLiteral(from))
	}
	return fmt.Sprintf("UPDATE %s SET version_num = %s WHERE version_num = %s", table, pq.QuoteLiteral(to), pq.QuoteLiteral(from))
}

// currentKnown reads the marker and checks the registry knows it
func (r *Runner) currentKnown(ctx context.Context) (string, error) {
	current, err := r.store.Current(ctx, r.db)
	if err != nil {
		return "", err
	}
	if !r.registry.Contains(current) {
		return "", fmt.Errorf("database is at a revision this build does not know: %w", &UnknownRevisionError{Ref: current})
	}
	return current, nil
}

// Close releases resources held by the lock driver, such as the Redis
// client of a RedisLock. The database handle is owned by the caller.
func (r *Runner) Close() error {
	if closer, ok := r.locker.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// lock takes the run lock. The returned context is cancelled with
// ErrLockLost if a lease based lock runs out before release.
func (r *Runner) lock(ctx context.Context) (context.Context, func(), error) {
	lockCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.lockTimeout > 0 {
		lockCtx, cancel = context.WithTimeout(ctx, r.lockTimeout)
	}
	defer cancel()

	var (
		release func()
		lost    <-chan struct{}
		err     error
	)
	start := time.Now()
	if lease, ok := r.locker.(LeaseLocker); ok {
		release, lost, err = lease.AcquireLease(lockCtx, r.lockKey)
	} else {
		release, err = r.locker.Acquire(lockCtx, r.lockKey)
	}
	r.metrics.observeLockWait(time.Since(start))
	if err != nil {
		if ctx.Err() == nil && errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s: %v", ErrLockTimeout, r.lockTimeout, err)
		}
		return nil, nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	r.logger.Debug().Str("key", r.lockKey).Dur("waited", time.Since(start)).Msg("Migration lock acquired")

	runCtx, cancelRun := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-lost:
			r.logger.Error().Str("key", r.lockKey).Msg("Migration lock lost, cancelling run")
			cancelRun(ErrLockLost)
		case <-stop:
		}
	}()

	return runCtx, func() {
		close(stop)
		<-watched
		cancelRun(nil)
		release()
		r.logger.Debug().Str("key", r.lockKey).Msg("Migration lock released")
	}, nil
}
