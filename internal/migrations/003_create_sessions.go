package migrations

import (
	"context"
	"time"

	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/schema"
	"github.com/rs/zerolog"
)

// CreateSessions creates the sessions table
func CreateSessions() migration.Revision {
	return migration.Revision{
		ID:           "00ada6bdd27a",
		DownRevision: "68dd00d75f21",
		Message:      "create sessions",
		CreatedAt:    time.Date(2024, 3, 4, 16, 40, 12, 0, time.UTC),
		Upgrade:      createSessionsUp,
		Downgrade:    createSessionsDown,
	}
}

func createSessionsUp(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	if err := op.CreateTable(ctx, "sessions",
		schema.NewColumn("id", schema.Integer(), schema.NotNull()),
		schema.NewColumn("user_id", schema.Integer(), schema.NotNull()),
		schema.NewColumn("token", schema.String(0), schema.NotNull()),
		schema.NewColumn("expires_at", schema.Timestamp(true), schema.NotNull()),
		schema.NewColumn("created_at", schema.Timestamp(true), schema.NotNull(), schema.ServerDefault(schema.Now())),
		schema.ForeignKey([]string{"user_id"}, "users", []string{"id"}, "CASCADE"),
		schema.PrimaryKey("id"),
	); err != nil {
		return err
	}
	return op.CreateIndex(ctx, schema.IndexName("sessions", "token"), "sessions", []string{"token"}, true)
}

func createSessionsDown(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	if err := op.DropIndex(ctx, schema.IndexName("sessions", "token"), "sessions"); err != nil {
		return err
	}
	return op.DropTable(ctx, "sessions")
}
