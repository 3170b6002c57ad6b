package schema

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

func usersTable() []Element {
	return []Element{
		NewColumn("id", Integer(), NotNull()),
		NewColumn("email", String(255), NotNull()),
		NewColumn("api_key", String(0)),
		NewColumn("created_at", Timestamp(true), NotNull(), ServerDefault(Now())),
		PrimaryKey("id"),
	}
}

func TestCreateTable_Postgres(t *testing.T) {
	ops := NewOffline(Postgres, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, ops.CreateTable(ctx, "api_keys",
		NewColumn("id", Integer(), NotNull()),
		NewColumn("key", String(0), NotNull()),
		NewColumn("user_id", Integer(), NotNull()),
		NewColumn("created_at", Timestamp(true), NotNull(), ServerDefault(Now())),
		ForeignKey([]string{"user_id"}, "users", []string{"id"}, "cascade"),
		PrimaryKey("id"),
		Unique("user_id"),
	))

	expected := "CREATE TABLE \"api_keys\" (\n" +
		"\t\"id\" SERIAL NOT NULL,\n" +
		"\t\"key\" VARCHAR NOT NULL,\n" +
		"\t\"user_id\" INTEGER NOT NULL,\n" +
		"\t\"created_at\" TIMESTAMP WITH TIME ZONE DEFAULT now() NOT NULL,\n" +
		"\tFOREIGN KEY(\"user_id\") REFERENCES \"users\" (\"id\") ON DELETE CASCADE,\n" +
		"\tPRIMARY KEY (\"id\"),\n" +
		"\tUNIQUE (\"user_id\")\n" +
		")"
	assert.Equal(t, []string{expected}, ops.Statements())
}

func TestCreateTable_SQLite(t *testing.T) {
	ops := NewOffline(SQLite, zerolog.Nop())

	require.NoError(t, ops.CreateTable(context.Background(), "users", usersTable()...))

	expected := "CREATE TABLE \"users\" (\n" +
		"\t\"id\" INTEGER NOT NULL,\n" +
		"\t\"email\" VARCHAR(255) NOT NULL,\n" +
		"\t\"api_key\" VARCHAR,\n" +
		"\t\"created_at\" TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,\n" +
		"\tPRIMARY KEY (\"id\")\n" +
		")"
	assert.Equal(t, []string{expected}, ops.Statements())
}

func TestCreateTable_CompositeKeyIsNotSerial(t *testing.T) {
	ops := NewOffline(Postgres, zerolog.Nop())

	require.NoError(t, ops.CreateTable(context.Background(), "memberships",
		NewColumn("user_id", Integer(), NotNull()),
		NewColumn("group_id", BigInteger(), NotNull()),
		PrimaryKey("user_id", "group_id"),
	))

	stmts := ops.Statements()
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `"user_id" INTEGER NOT NULL`)
	assert.Contains(t, stmts[0], `"group_id" BIGINT NOT NULL`)
	assert.NotContains(t, stmts[0], "SERIAL")
}

func TestCreateTable_NoColumns(t *testing.T) {
	ops := NewOffline(Postgres, zerolog.Nop())

	err := ops.CreateTable(context.Background(), "empty", PrimaryKey("id"))
	require.Error(t, err)
	assert.Empty(t, ops.Statements())
}

func TestOfflineStatements(t *testing.T) {
	ops := NewOffline(Postgres, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, ops.CreateIndex(ctx, IndexName("users", "email"), "users", []string{"email"}, true))
	require.NoError(t, ops.CreateIndex(ctx, "created_at_idx", "sessions", []string{"created_at"}, false))
	require.NoError(t, ops.DropIndex(ctx, "ix_users_api_key", "users"))
	require.NoError(t, ops.AddColumn(ctx, "users", NewColumn("api_key", String(0))))
	require.NoError(t, ops.AddColumn(ctx, "users", NewColumn("active", Boolean(), NotNull(), ServerDefault(Literal("true")))))
	require.NoError(t, ops.DropColumn(ctx, "users", "api_key"))
	require.NoError(t, ops.DropTable(ctx, "api_keys"))
	require.NoError(t, ops.Execute(ctx, "UPDATE users SET email = lower(email)"))

	assert.Equal(t, []string{
		`CREATE UNIQUE INDEX "ix_users_email" ON "users" ("email")`,
		`CREATE INDEX "created_at_idx" ON "sessions" ("created_at")`,
		`DROP INDEX "ix_users_api_key"`,
		`ALTER TABLE "users" ADD COLUMN "api_key" VARCHAR`,
		`ALTER TABLE "users" ADD COLUMN "active" BOOLEAN DEFAULT true NOT NULL`,
		`ALTER TABLE "users" DROP COLUMN "api_key"`,
		`DROP TABLE "api_keys"`,
		`UPDATE users SET email = lower(email)`,
	}, ops.Statements())
	assert.True(t, ops.Offline())
	assert.Nil(t, ops.DB())
}

func TestAddColumn_SQLiteNotNullWithoutDefault(t *testing.T) {
	ops := NewOffline(SQLite, zerolog.Nop())

	err := ops.AddColumn(context.Background(), "users", NewColumn("name", Text(), NotNull()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT NULL")
}

func TestCreateIndex_NoColumns(t *testing.T) {
	ops := NewOffline(SQLite, zerolog.Nop())
	assert.Error(t, ops.CreateIndex(context.Background(), "ix_empty", "users", nil, false))
}

func TestQuoteEscapesIdentifiers(t *testing.T) {
	ops := NewOffline(Postgres, zerolog.Nop())

	require.NoError(t, ops.DropTable(context.Background(), `weird"name`))
	assert.Equal(t, []string{`DROP TABLE "weird""name"`}, ops.Statements())
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		name     string
		expected Dialect
		wantErr  bool
	}{
		{name: "postgres", expected: Postgres},
		{name: "PostgreSQL", expected: Postgres},
		{name: "sqlite", expected: SQLite},
		{name: "sqlite3", expected: SQLite},
		{name: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDialect(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestOperations_ExecuteOnSQLite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ops, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, SQLite, ops.Dialect())
	assert.False(t, ops.Offline())

	require.NoError(t, ops.CreateTable(ctx, "users", usersTable()...))
	require.NoError(t, ops.CreateIndex(ctx, IndexName("users", "email"), "users", []string{"email"}, true))
	require.NoError(t, ops.CreateIndex(ctx, IndexName("users", "api_key"), "users", []string{"api_key"}, false))

	snap, err := Inspect(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, []string{"users"}, snap.TableNames())
	assert.True(t, snap.HasColumn("users", "api_key"))
	assert.True(t, snap.HasIndex("users", "ix_users_email"))
	assert.True(t, snap.HasIndex("users", "ix_users_api_key"))

	// The integer primary key auto-increments and the default fills created_at
	require.NoError(t, db.Exec(`INSERT INTO users (email) VALUES ('a@example.com')`).Error)
	var count int64
	require.NoError(t, db.Table("users").Where("id = 1 AND created_at IS NOT NULL").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Unique index is enforced
	assert.Error(t, db.Exec(`INSERT INTO users (email) VALUES ('a@example.com')`).Error)

	require.NoError(t, ops.DropIndex(ctx, "ix_users_api_key", "users"))
	require.NoError(t, ops.DropColumn(ctx, "users", "api_key"))

	snap, err = Inspect(ctx, db)
	require.NoError(t, err)
	assert.False(t, snap.HasColumn("users", "api_key"))
	assert.False(t, snap.HasIndex("users", "ix_users_api_key"))
	assert.Len(t, ops.Statements(), 5)
}

func TestInspect_RoundTripIsStable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ops, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ops.CreateTable(ctx, "users", usersTable()...))
	require.NoError(t, ops.CreateIndex(ctx, "ix_users_api_key", "users", []string{"api_key"}, false))

	before, err := Inspect(ctx, db)
	require.NoError(t, err)

	require.NoError(t, ops.DropIndex(ctx, "ix_users_api_key", "users"))
	require.NoError(t, ops.DropColumn(ctx, "users", "api_key"))
	require.NoError(t, ops.AddColumn(ctx, "users", NewColumn("api_key", String(0))))
	require.NoError(t, ops.CreateIndex(ctx, "ix_users_api_key", "users", []string{"api_key"}, false))

	after, err := Inspect(ctx, db)
	require.NoError(t, err)

	// Column order changed, the sorted snapshot did not
	assert.Equal(t, before, after)
}

func TestInspect_Exclude(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Exec("CREATE TABLE schema_version (version_num VARCHAR(64) NOT NULL)").Error)
	require.NoError(t, db.Exec("CREATE TABLE widgets (id INTEGER)").Error)

	snap, err := Inspect(ctx, db, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets"}, snap.TableNames())
}
