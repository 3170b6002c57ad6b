package migrations

import (
	"context"
	"time"

	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/schema"
	"github.com/rs/zerolog"
)

// SessionsCreatedAtIndex indexes sessions by creation time
func SessionsCreatedAtIndex() migration.Revision {
	return migration.Revision{
		ID:           "e3f56b464aee",
		DownRevision: "00ada6bdd27a",
		Message:      "sessions created_at index",
		CreatedAt:    time.Date(2024, 9, 12, 13, 11, 6, 0, time.UTC),
		Upgrade: func(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
			return op.CreateIndex(ctx, "created_at_idx", "sessions", []string{"created_at"}, false)
		},
		Downgrade: func(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
			return op.DropIndex(ctx, "created_at_idx", "sessions")
		},
	}
}
