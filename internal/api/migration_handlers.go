package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/models"
	"github.com/ksred/revchain/internal/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type ErrorResponse struct {
	Error      string   `json:"error"`
	Revision   string   `json:"revision,omitempty"`
	Direction  string   `json:"direction,omitempty"`
	Current    string   `json:"current,omitempty"`
	Applied    []string `json:"applied,omitempty"`
	SQLState   string   `json:"sqlstate,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

type TargetRequest struct {
	Target string `json:"target" example:"head"`
}

type RevisionInfo struct {
	ID           string    `json:"id"`
	DownRevision string    `json:"down_revision"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Applied      bool      `json:"applied"`
	Current      bool      `json:"current"`
}

type RevisionsResponse struct {
	Current   string         `json:"current"`
	Head      string         `json:"head"`
	Revisions []RevisionInfo `json:"revisions"`
}

type HistoryResponse struct {
	Entries []models.MigrationHistory `json:"entries"`
	Count   int                       `json:"count"`
}

type SQLResponse struct {
	Direction  migration.Direction `json:"direction"`
	Target     string              `json:"target"`
	Statements []string            `json:"statements"`
}

// listRevisionsHandler godoc
// @Summary List revisions
// @Description All known revisions in chain order, marked applied up to the current revision
// @Tags revisions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RevisionsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /revisions [get]
func (s *Server) listRevisionsHandler(c *gin.Context) {
	registry := s.runner.Registry()

	current, err := s.runner.Current(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	position := 0
	if registry.Contains(current) {
		position, _ = registry.Position(current)
	}

	revs := registry.Revisions()
	infos := make([]RevisionInfo, 0, len(revs))
	for i, rev := range revs {
		infos = append(infos, RevisionInfo{
			ID:           rev.ID,
			DownRevision: displayRevision(rev.DownRevision),
			Message:      rev.Message,
			CreatedAt:    rev.CreatedAt,
			Applied:      i < position,
			Current:      rev.ID == current,
		})
	}

	c.JSON(http.StatusOK, RevisionsResponse{
		Current:   displayRevision(current),
		Head:      displayRevision(registry.Head()),
		Revisions: infos,
	})
}

// statusHandler godoc
// @Summary Migration status
// @Description Current revision, head, and the applied and pending revisions
// @Tags revisions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} migration.Status
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /status [get]
func (s *Server) statusHandler(c *gin.Context) {
	status, err := s.runner.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// historyHandler godoc
// @Summary Migration history
// @Description Most recent marker changes, newest first
// @Tags revisions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries" default(20)
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /history [get]
func (s *Server) historyHandler(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			s.writeError(c, utils.WrapValidationError("limit", "must be a positive integer"))
			return
		}
		limit = l
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := s.runner.History(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// planHandler godoc
// @Summary Plan a migration
// @Description Ordered steps an upgrade or downgrade to target would run, without running them
// @Tags migrations
// @Produce json
// @Security BearerAuth
// @Param direction query string true "upgrade or downgrade"
// @Param target query string false "Target revision" default(head)
// @Success 200 {object} migration.Plan
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /plan [get]
func (s *Server) planHandler(c *gin.Context) {
	direction, target, err := directionAndTarget(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	plan, err := s.runner.Plan(c.Request.Context(), direction, target)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// sqlHandler godoc
// @Summary Render migration SQL
// @Description Offline SQL for an upgrade or downgrade. target may be a from:to range.
// @Tags migrations
// @Produce json
// @Security BearerAuth
// @Param direction query string true "upgrade or downgrade"
// @Param target query string false "Target revision or from:to range" default(head)
// @Success 200 {object} SQLResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sql [get]
func (s *Server) sqlHandler(c *gin.Context) {
	direction, target, err := directionAndTarget(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	statements, err := s.runner.SQL(c.Request.Context(), direction, target)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SQLResponse{Direction: direction, Target: target, Statements: statements})
}

// upgradeHandler godoc
// @Summary Upgrade
// @Description Apply revisions up to target, head when omitted
// @Tags migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TargetRequest false "Target revision"
// @Success 200 {object} migration.Result
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /upgrade [post]
func (s *Server) upgradeHandler(c *gin.Context) {
	target, ok := s.bindTarget(c, migration.Head)
	if !ok {
		return
	}

	utils.FromContext(c.Request.Context()).Info().Str("target", target).Msg("Upgrade requested")

	res, err := s.runner.Upgrade(c.Request.Context(), target)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// downgradeHandler godoc
// @Summary Downgrade
// @Description Revert revisions down to target
// @Tags migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TargetRequest true "Target revision"
// @Success 200 {object} migration.Result
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /downgrade [post]
func (s *Server) downgradeHandler(c *gin.Context) {
	target, ok := s.bindTarget(c, "")
	if !ok {
		return
	}

	utils.FromContext(c.Request.Context()).Info().Str("target", target).Msg("Downgrade requested")

	res, err := s.runner.Downgrade(c.Request.Context(), target)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// stampHandler godoc
// @Summary Stamp
// @Description Set the revision marker without running any operations
// @Tags migrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TargetRequest true "Target revision"
// @Success 200 {object} migration.Result
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /stamp [post]
func (s *Server) stampHandler(c *gin.Context) {
	target, ok := s.bindTarget(c, "")
	if !ok {
		return
	}

	utils.FromContext(c.Request.Context()).Warn().Str("target", target).Msg("Stamp requested")

	res, err := s.runner.Stamp(c.Request.Context(), target)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindTarget reads the request body. An empty target falls back to
// fallback, and is a validation error when fallback is empty.
func (s *Server) bindTarget(c *gin.Context, fallback string) (string, bool) {
	var req TargetRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.writeError(c, utils.WrapValidationError("body", err.Error()))
			return "", false
		}
	}

	if req.Target == "" {
		if fallback == "" {
			s.writeError(c, utils.RequiredFieldError("target"))
			return "", false
		}
		req.Target = fallback
	}
	return req.Target, true
}

func directionAndTarget(c *gin.Context) (migration.Direction, string, error) {
	direction := migration.Direction(c.Query("direction"))
	switch direction {
	case migration.Up, migration.Down:
	case "":
		return "", "", utils.RequiredFieldError("direction")
	default:
		return "", "", utils.WrapValidationError("direction", "must be upgrade or downgrade")
	}

	target := c.Query("target")
	if target == "" {
		if direction == migration.Down {
			return "", "", utils.RequiredFieldError("target")
		}
		target = migration.Head
	}
	return direction, target, nil
}

// writeError maps runner errors onto HTTP statuses. A failed operation
// reports where the database was left.
func (s *Server) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var migErr *migration.MigrationError
	if errors.As(err, &migErr) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     err.Error(),
			Revision:  migErr.Revision,
			Direction: string(migErr.Direction),
			Current:   displayRevision(migErr.Current),
			Applied:   migErr.Applied,
			SQLState:  migErr.SQLState(),
		})
		return
	}

	var unknown *migration.UnknownRevisionError
	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Candidates: unknown.Candidates})
	case utils.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case utils.IsConflictError(err):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
