package migrations

import (
	"context"
	"time"

	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/schema"
	"github.com/rs/zerolog"
)

// AddAPIKeys moves API keys out of users into their own table, one key per user
func AddAPIKeys() migration.Revision {
	return migration.Revision{
		ID:           "68dd00d75f21",
		DownRevision: "9271779d8dc3",
		Message:      "add api keys",
		CreatedAt:    time.Date(2023, 12, 19, 10, 21, 4, 0, time.UTC),
		Upgrade:      addAPIKeysUp,
		Downgrade:    addAPIKeysDown,
	}
}

func addAPIKeysUp(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	logger.Info().Msg("Creating api_keys table")

	if err := op.CreateTable(ctx, "api_keys",
		schema.NewColumn("id", schema.Integer(), schema.NotNull()),
		schema.NewColumn("key", schema.String(0), schema.NotNull()),
		schema.NewColumn("truncated_key", schema.String(0), schema.NotNull()),
		schema.NewColumn("user_id", schema.Integer(), schema.NotNull()),
		schema.NewColumn("created_at", schema.Timestamp(true), schema.NotNull(), schema.ServerDefault(schema.Now())),
		schema.NewColumn("updated_at", schema.Timestamp(true), schema.NotNull(), schema.ServerDefault(schema.Now())),
		schema.ForeignKey([]string{"user_id"}, "users", []string{"id"}, "CASCADE"),
		schema.PrimaryKey("id"),
		schema.Unique("user_id"),
	); err != nil {
		return err
	}
	if err := op.CreateIndex(ctx, schema.IndexName("api_keys", "key"), "api_keys", []string{"key"}, false); err != nil {
		return err
	}

	logger.Info().Msg("Dropping users.api_key")
	if err := op.DropIndex(ctx, schema.IndexName("users", "api_key"), "users"); err != nil {
		return err
	}
	return op.DropColumn(ctx, "users", "api_key")
}

// addAPIKeysDown restores the column empty; keys stored in api_keys are lost
func addAPIKeysDown(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
	if err := op.AddColumn(ctx, "users", schema.NewColumn("api_key", schema.String(0))); err != nil {
		return err
	}
	if err := op.CreateIndex(ctx, schema.IndexName("users", "api_key"), "users", []string{"api_key"}, false); err != nil {
		return err
	}
	if err := op.DropIndex(ctx, schema.IndexName("api_keys", "key"), "api_keys"); err != nil {
		return err
	}
	return op.DropTable(ctx, "api_keys")
}
