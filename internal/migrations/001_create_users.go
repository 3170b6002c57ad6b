package migrations

import (
	"context"
	"time"

	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/schema"
	"github.com/rs/zerolog"
)

// CreateUsers creates the users table with its inline api_key column
func CreateUsers() migration.Revision {
	return migration.Revision{
		ID:           "9271779d8dc3",
		DownRevision: "",
		Message:      "create users",
		CreatedAt:    time.Date(2023, 12, 1, 9, 12, 44, 0, time.UTC),
		Upgrade:      createUsersUp,
		Downgrade:    createUsersDown,
	}
}

func createUsersUp(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	logger.Info().Msg("Creating users table")

	if err := op.CreateTable(ctx, "users",
		schema.NewColumn("id", schema.Integer(), schema.NotNull()),
		schema.NewColumn("email", schema.String(0), schema.NotNull()),
		schema.NewColumn("api_key", schema.String(0)),
		schema.NewColumn("created_at", schema.Timestamp(true), schema.NotNull(), schema.ServerDefault(schema.Now())),
		schema.PrimaryKey("id"),
	); err != nil {
		return err
	}
	if err := op.CreateIndex(ctx, schema.IndexName("users", "email"), "users", []string{"email"}, true); err != nil {
		return err
	}
	return op.CreateIndex(ctx, schema.IndexName("users", "api_key"), "users", []string{"api_key"}, false)
}

func createUsersDown(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	if err := op.DropIndex(ctx, schema.IndexName("users", "api_key"), "users"); err != nil {
		return err
	}
	if err := op.DropIndex(ctx, schema.IndexName("users", "email"), "users"); err != nil {
		return err
	}
	return op.DropTable(ctx, "users")
}
