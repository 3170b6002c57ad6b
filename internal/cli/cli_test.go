package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/revchain/internal/database"
	"github.com/ksred/revchain/internal/migration"
	"github.com/ksred/revchain/internal/schema"
)

func createTable(id, down, table string) migration.Revision {
	return migration.Revision{
		ID:           id,
		DownRevision: down,
		Message:      "create " + table,
		Upgrade: func(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
			return op.CreateTable(ctx, table,
				schema.NewColumn("id", schema.Integer(), schema.NotNull()),
				schema.PrimaryKey("id"),
			)
		},
		Downgrade: func(ctx context.Context, op *schema.Operations, logger zerolog.Logger) error {
			return op.DropTable(ctx, table)
		},
	}
}

func testRevisions() []migration.Revision {
	return []migration.Revision{
		createTable("aaa111", "", "alpha"),
		createTable("bbb222", "aaa111", "beta"),
		createTable("ccc333", "bbb222", "gamma"),
	}
}

func setupRunner(t *testing.T) *migration.Runner {
	db := database.NewDatabase(map[string]interface{}{
		"driver":    "sqlite",
		"path":      ":memory:",
		"log_level": "silent",
	}, zerolog.Nop())
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { db.Close() })

	registry, err := migration.NewRegistry(testRevisions()...)
	require.NoError(t, err)

	return migration.NewRunner(db.DB(), registry, zerolog.Nop())
}

// run parses and executes args against runner, returning stdout
func run(t *testing.T, runner *migration.Runner, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	c, err := New("test", &stdout, &stderr)
	require.NoError(t, err)
	require.NoError(t, c.Parse(args))

	err = c.Execute(&Env{
		Runner: runner,
		Logger: zerolog.Nop(),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return stdout.String(), err
}

func TestParse_GlobalFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c, err := New("test", &stdout, &stderr)
	require.NoError(t, err)

	require.NoError(t, c.Parse([]string{"--config", "/etc/revchain/revchain.yaml", "--log-level", "debug", "upgrade", "head", "--sql"}))
	assert.Equal(t, "/etc/revchain/revchain.yaml", c.ConfigFile)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "upgrade", c.Command())
	assert.Equal(t, "head", c.Upgrade.Target)
	assert.True(t, c.Upgrade.SQL)
}

func TestParse_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	c, err := New("test", &stdout, &stderr)
	require.NoError(t, err)

	assert.Error(t, c.Parse([]string{"downgrade"}))
	assert.Error(t, c.Parse([]string{"nonsense"}))
}

func TestOffline(t *testing.T) {
	tests := []struct {
		args    []string
		offline bool
	}{
		{args: []string{"upgrade", "--sql", "base:head"}, offline: true},
		{args: []string{"downgrade", "--sql", "head:base"}, offline: true},
		{args: []string{"upgrade", "--sql", "head"}, offline: false},
		{args: []string{"upgrade", "base:head"}, offline: false},
		{args: []string{"show", "head"}, offline: false},
		{args: []string{"current"}, offline: false},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			c, err := New("test", &stdout, &stderr)
			require.NoError(t, err)
			require.NoError(t, c.Parse(tt.args))
			assert.Equal(t, tt.offline, c.Offline())
		})
	}
}

func TestUpgradeSQLWithoutDatabase(t *testing.T) {
	reg, err := migration.NewRegistry(testRevisions()...)
	require.NoError(t, err)
	runner := migration.NewRunner(nil, reg, zerolog.Nop(), migration.WithDialect(schema.Postgres))

	out, err := run(t, runner, "upgrade", "--sql", "base:bbb222")
	require.NoError(t, err)
	assert.Contains(t, out, "-- Running upgrade base -> aaa111")
	assert.Contains(t, out, "-- Running upgrade aaa111 -> bbb222")

	_, err = run(t, runner, "upgrade", "--sql", "head")
	assert.ErrorIs(t, err, migration.ErrNoDatabase)
}

func TestUpgradeDefaultsToHead(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "upgrade")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 3 upgrade(s) from base to ccc333")

	out, err = run(t, runner, "current")
	require.NoError(t, err)
	assert.Equal(t, "ccc333 (head)\n", out)

	out, err = run(t, runner, "upgrade")
	require.NoError(t, err)
	assert.Equal(t, "Already at ccc333, nothing to do\n", out)
}

func TestCurrentAndHeads(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "current")
	require.NoError(t, err)
	assert.Equal(t, "base\n", out)

	_, err = run(t, runner, "upgrade", "aaa")
	require.NoError(t, err)

	out, err = run(t, runner, "current", "-v")
	require.NoError(t, err)
	assert.Equal(t, "aaa111 create alpha\n", out)

	out, err = run(t, runner, "heads")
	require.NoError(t, err)
	assert.Equal(t, "ccc333 (head) create gamma\n", out)
}

func TestDowngradeRelative(t *testing.T) {
	runner := setupRunner(t)

	_, err := run(t, runner, "upgrade", "head")
	require.NoError(t, err)

	// Relative targets start with a dash, so they follow --
	out, err := run(t, runner, "downgrade", "--", "-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 2 downgrade(s) from ccc333 to aaa111")

	current, err := runner.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "aaa111", current)
}

func TestUpgradeSQL(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "upgrade", "bbb222", "--sql")
	require.NoError(t, err)
	assert.Contains(t, out, "-- Running upgrade base -> aaa111")
	assert.Contains(t, out, "-- Running upgrade aaa111 -> bbb222")
	assert.Contains(t, out, `CREATE TABLE "beta"`)
	assert.Contains(t, out, `INSERT INTO "schema_version" (version_num) VALUES ('aaa111');`)
	assert.Contains(t, out, `UPDATE "schema_version" SET version_num = 'bbb222' WHERE version_num = 'aaa111';`)

	// Nothing ran
	current, err := runner.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", current)
}

func TestDowngradeSQLRange(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "downgrade", "ccc333:aaa111", "--sql")
	require.NoError(t, err)
	assert.Contains(t, out, `DROP TABLE "gamma";`)
	assert.Contains(t, out, `DROP TABLE "beta";`)
	assert.NotContains(t, out, `DROP TABLE "alpha"`)
	assert.Less(t, strings.Index(out, `"gamma"`), strings.Index(out, `"beta"`))
}

func TestStampAndHistory(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "history")
	require.NoError(t, err)
	assert.Equal(t, "no history\n", out)

	out, err = run(t, runner, "stamp", "bbb222")
	require.NoError(t, err)
	assert.Equal(t, "Stamped base -> bbb222\n", out)

	_, err = run(t, runner, "upgrade")
	require.NoError(t, err)

	out, err = run(t, runner, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "stamp")
	assert.Contains(t, out, "upgrade")
	assert.Contains(t, out, "ccc333")

	_, err = run(t, runner, "history", "--limit", "0")
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	runner := setupRunner(t)

	_, err := run(t, runner, "upgrade", "aaa111")
	require.NoError(t, err)

	out, err := run(t, runner, "show", "bbb")
	require.NoError(t, err)
	assert.Contains(t, out, "bbb222")
	assert.Contains(t, out, "aaa111")
	assert.Contains(t, out, "create beta")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, `CREATE TABLE "beta"`)

	out, err = run(t, runner, "show", "head-2")
	require.NoError(t, err)
	assert.Contains(t, out, "create alpha")
	assert.Contains(t, out, "true")

	out, err = run(t, runner, "show", "base")
	require.NoError(t, err)
	assert.Equal(t, "Rev: base\n", out)

	_, err = run(t, runner, "show", "zzz")
	assert.True(t, errors.Is(err, migration.ErrUnknownRevision))
}

func TestCheck(t *testing.T) {
	runner := setupRunner(t)

	out, err := run(t, runner, "check")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPendingRevisions))
	assert.Contains(t, err.Error(), "3 behind head ccc333")
	assert.Contains(t, out, "aaa111")
	assert.Contains(t, out, "create gamma")

	_, err = run(t, runner, "upgrade")
	require.NoError(t, err)

	out, err = run(t, runner, "check")
	require.NoError(t, err)
	assert.Equal(t, "No pending revisions, database is at ccc333\n", out)
}
