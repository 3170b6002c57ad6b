// Package migration orders revisions into a chain and applies them to a
// database under an exclusive lock, tracking progress in a single-row marker.
package migration

import (
	"context"
	"time"

	"github.com/ksred/revchain/internal/schema"
	"github.com/rs/zerolog"
)

// Symbolic references accepted by Registry.Resolve
const (
	Base = "base"
	Head = "head"
)

// OperationFunc changes the schema through op, which is bound to the
// transaction the runner opened for the step
type OperationFunc func(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error

// Revision is one reversible schema change. DownRevision names the
// predecessor; empty marks the root of the chain.
type Revision struct {
	ID           string        `json:"id"`
	DownRevision string        `json:"down_revision"`
	Message      string        `json:"message"`
	CreatedAt    time.Time     `json:"created_at"`
	Upgrade      OperationFunc `json:"-"`
	Downgrade    OperationFunc `json:"-"`
}

// Direction is the way a step moves the marker
type Direction string

const (
	Up   Direction = "upgrade"
	Down Direction = "downgrade"
)

// Step is one revision run in one direction. From and To are the marker
// values before and after the step.
type Step struct {
	Revision  string        `json:"revision"`
	Message   string        `json:"message"`
	Direction Direction     `json:"direction"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Operation OperationFunc `json:"-"`
}

// Plan is an ordered path between two markers
type Plan struct {
	Direction Direction `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Steps     []Step    `json:"steps"`
}

// Empty reports whether the plan has nothing to run
func (p Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Revisions returns the revision IDs in execution order
func (p Plan) Revisions() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.Revision
	}
	return ids
}

func upStep(rev Revision) Step {
	return Step{
		Revision:  rev.ID,
		Message:   rev.Message,
		Direction: Up,
		From:      rev.DownRevision,
		To:        rev.ID,
		Operation: rev.Upgrade,
	}
}

func downStep(rev Revision) Step {
	return Step{
		Revision:  rev.ID,
		Message:   rev.Message,
		Direction: Down,
		From:      rev.ID,
		To:        rev.DownRevision,
		Operation: rev.Downgrade,
	}
}
