package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ksred/revchain/internal/migration"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Handler manages MCP tool handlers
type Handler struct {
	runner *migration.Runner
	logger zerolog.Logger
}

// NewHandler creates a new MCP handler
func NewHandler(runner *migration.Runner, logger zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: logger,
	}
}

// HandleStatus reports the current revision against head
func (h *Handler) HandleStatus(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	status, err := h.runner.Status(ctx)
	if err != nil {
		if resp := inBandError(err); resp != nil {
			return resp, nil
		}
		return nil, err
	}

	message := fmt.Sprintf("Database is at %s, %d revision(s) pending", displayRevision(status.Current), len(status.Pending))
	if status.UpToDate {
		message = fmt.Sprintf("Database is up to date at %s", displayRevision(status.Current))
	}

	resp := NewSuccessResponse(message, status)
	resp.Meta = &ResponseMeta{
		Current: displayRevision(status.Current),
		Head:    displayRevision(status.Head),
	}
	return resp, nil
}

// HandleListRevisions lists every revision in chain order
func (h *Handler) HandleListRevisions(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	registry := h.runner.Registry()

	current, err := h.runner.Current(ctx)
	if err != nil {
		return nil, err
	}

	position := 0
	if registry.Contains(current) {
		position, _ = registry.Position(current)
	}

	revs := registry.Revisions()
	summaries := make([]RevisionSummary, 0, len(revs))
	for i, rev := range revs {
		summaries = append(summaries, RevisionSummary{
			ID:           rev.ID,
			DownRevision: displayRevision(rev.DownRevision),
			Message:      rev.Message,
			CreatedAt:    rev.CreatedAt,
			Applied:      i < position,
			Current:      rev.ID == current,
		})
	}

	resp := NewSuccessResponse(fmt.Sprintf("%d revision(s)", len(summaries)), summaries)
	resp.Meta = &ResponseMeta{
		Count:   len(summaries),
		Current: displayRevision(current),
		Head:    displayRevision(registry.Head()),
	}
	return resp, nil
}

// HandleHistory returns the most recent marker changes
func (h *Handler) HandleHistory(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	var req HistoryRequest
	if err := unmarshalParams(params, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("invalid request format: %v", err)), nil
	}

	if req.Limit < 0 {
		return NewErrorResponse("limit must be positive"), nil
	}
	if req.Limit == 0 {
		req.Limit = defaultHistoryLimit
	}
	if req.Limit > maxHistoryLimit {
		req.Limit = maxHistoryLimit
	}

	entries, err := h.runner.History(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	resp := NewSuccessResponse(fmt.Sprintf("%d history entries", len(entries)), entries)
	resp.Meta = &ResponseMeta{Count: len(entries)}
	return resp, nil
}

// HandlePlan returns the steps a migration would run, without running them
func (h *Handler) HandlePlan(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	var req PlanRequest
	if err := unmarshalParams(params, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("invalid request format: %v", err)), nil
	}

	direction := migration.Direction(req.Direction)
	switch direction {
	case migration.Up:
		if req.Target == "" {
			req.Target = migration.Head
		}
	case migration.Down:
		if req.Target == "" {
			return NewErrorResponse("target is required for a downgrade"), nil
		}
	default:
		return NewErrorResponse("direction must be upgrade or downgrade"), nil
	}

	plan, err := h.runner.Plan(ctx, direction, req.Target)
	if err != nil {
		if resp := inBandError(err); resp != nil {
			return resp, nil
		}
		return nil, err
	}

	message := fmt.Sprintf("%s from %s to %s runs %d step(s)", plan.Direction, displayRevision(plan.From), displayRevision(plan.To), len(plan.Steps))
	if plan.Empty() {
		message = fmt.Sprintf("Nothing to do, database is already at %s", displayRevision(plan.From))
	}

	resp := NewSuccessResponse(message, plan)
	resp.Meta = &ResponseMeta{Count: len(plan.Steps)}
	return resp, nil
}

// HandleUpgrade applies revisions up to the target, head by default
func (h *Handler) HandleUpgrade(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	return h.migrate(ctx, migration.Up, params)
}

// HandleDowngrade reverts revisions down to the target
func (h *Handler) HandleDowngrade(ctx context.Context, params json.RawMessage) (*ToolResponse, error) {
	return h.migrate(ctx, migration.Down, params)
}

func (h *Handler) migrate(ctx context.Context, direction migration.Direction, params json.RawMessage) (*ToolResponse, error) {
	var req TargetRequest
	if err := unmarshalParams(params, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("invalid request format: %v", err)), nil
	}

	if req.Target == "" {
		if direction == migration.Down {
			return NewErrorResponse("target is required for a downgrade"), nil
		}
		req.Target = migration.Head
	}

	if req.SQL {
		statements, err := h.runner.SQL(ctx, direction, req.Target)
		if err != nil {
			if resp := inBandError(err); resp != nil {
				return resp, nil
			}
			return nil, err
		}
		resp := NewSuccessResponse(fmt.Sprintf("%d SQL line(s) for %s to %s", len(statements), direction, req.Target), statements)
		resp.Meta = &ResponseMeta{Count: len(statements)}
		return resp, nil
	}

	h.logger.Info().Str("direction", string(direction)).Str("target", req.Target).Msg("Migration requested over MCP")

	var (
		res *migration.Result
		err error
	)
	if direction == migration.Up {
		res, err = h.runner.Upgrade(ctx, req.Target)
	} else {
		res, err = h.runner.Downgrade(ctx, req.Target)
	}
	if err != nil {
		if resp := inBandError(err); resp != nil {
			return resp, nil
		}
		return nil, err
	}

	message := fmt.Sprintf("Database moved from %s to %s", displayRevision(res.From), displayRevision(res.To))
	if len(res.Applied) == 0 {
		message = fmt.Sprintf("Nothing to do, database is already at %s", displayRevision(res.To))
	}

	resp := NewSuccessResponse(message, res)
	resp.Meta = &ResponseMeta{Count: len(res.Applied), Current: displayRevision(res.To)}
	return resp, nil
}

// inBandError turns errors the caller can act on into an unsuccessful
// response. Anything else is returned as a tool error.
func inBandError(err error) *ToolResponse {
	var migErr *migration.MigrationError
	if errors.As(err, &migErr) {
		resp := NewErrorResponse(err.Error())
		resp.Data = FailureDetail{
			Revision:  migErr.Revision,
			Direction: string(migErr.Direction),
			Current:   displayRevision(migErr.Current),
			Applied:   migErr.Applied,
			SQLState:  migErr.SQLState(),
		}
		return resp
	}

	if errors.Is(err, migration.ErrUnknownRevision) ||
		errors.Is(err, migration.ErrWrongDirection) ||
		errors.Is(err, migration.ErrLockTimeout) ||
		errors.Is(err, migration.ErrLockLost) ||
		errors.Is(err, migration.ErrMarkerMoved) {
		return NewErrorResponse(err.Error())
	}
	return nil
}

func unmarshalParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	return json.Unmarshal(params, v)
}

func displayRevision(id string) string {
	if id == "" {
		return migration.Base
	}
	return id
}
