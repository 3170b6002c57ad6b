package database

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	config := map[string]interface{}{
		"host":   "localhost",
		"port":   5432,
		"dbname": "test",
	}

	db := NewDatabase(config, zerolog.Nop())
	assert.NotNil(t, db)
	assert.Equal(t, config, db.config)
	assert.Nil(t, db.db)
	assert.Equal(t, "postgres", db.Driver())
}

func TestDatabase_buildDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   map[string]interface{}
		expected string
	}{
		{
			name: "Full configuration",
			config: map[string]interface{}{
				"host":     "localhost",
				"port":     5432,
				"user":     "postgres",
				"password": "password",
				"dbname":   "testdb",
				"sslmode":  "require",
				"timezone": "UTC",
			},
			expected: "host=localhost port=5432 user=postgres password=password dbname=testdb sslmode=require TimeZone=UTC",
		},
		{
			name:     "Default values",
			config:   map[string]interface{}{},
			expected: "host=localhost port=5432 user=postgres password= dbname=revchain sslmode=disable TimeZone=UTC",
		},
		{
			name: "Partial configuration",
			config: map[string]interface{}{
				"host":   "db.example.com",
				"port":   5433,
				"user":   "dbuser",
				"dbname": "mydb",
			},
			expected: "host=db.example.com port=5433 user=dbuser password= dbname=mydb sslmode=disable TimeZone=UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := NewDatabase(tt.config, zerolog.Nop())
			assert.Equal(t, tt.expected, db.buildDSN())
		})
	}
}

func TestDatabase_buildSQLiteDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "Plain path", path: "app.db", expected: "app.db?_foreign_keys=on"},
		{name: "Memory", path: ":memory:", expected: ":memory:?_foreign_keys=on"},
		{name: "Existing params", path: "app.db?cache=shared", expected: "app.db?cache=shared&_foreign_keys=on"},
		{name: "Explicit foreign keys", path: "app.db?_foreign_keys=off", expected: "app.db?_foreign_keys=off"},
		{name: "Default path", path: "", expected: "revchain.db?_foreign_keys=on"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := NewDatabase(map[string]interface{}{"driver": "sqlite", "path": tt.path}, zerolog.Nop())
			assert.Equal(t, tt.expected, db.buildSQLiteDSN())
		})
	}
}

func TestDatabase_getConfigString(t *testing.T) {
	db := NewDatabase(map[string]interface{}{
		"string_key": "test_value",
		"empty_key":  "",
		"int_key":    123,
	}, zerolog.Nop())

	assert.Equal(t, "test_value", db.getConfigString("string_key", "default"))
	assert.Equal(t, "default", db.getConfigString("missing_key", "default"))
	assert.Equal(t, "default", db.getConfigString("empty_key", "default"))
	assert.Equal(t, "default", db.getConfigString("int_key", "default"))
}

func TestDatabase_getConfigInt(t *testing.T) {
	db := NewDatabase(map[string]interface{}{
		"int_key":    123,
		"float_key":  456.0,
		"string_key": "test",
	}, zerolog.Nop())

	assert.Equal(t, 123, db.getConfigInt("int_key", 999))
	// float64 is what JSON decoding produces
	assert.Equal(t, 456, db.getConfigInt("float_key", 999))
	assert.Equal(t, 999, db.getConfigInt("missing_key", 999))
	assert.Equal(t, 999, db.getConfigInt("string_key", 999))
}

func TestDatabase_getConfigDuration(t *testing.T) {
	db := NewDatabase(map[string]interface{}{
		"duration_string": "5m",
		"duration_direct": 10 * time.Minute,
		"invalid_string":  "invalid",
		"int_key":         123,
	}, zerolog.Nop())

	assert.Equal(t, 5*time.Minute, db.getConfigDuration("duration_string", time.Hour))
	assert.Equal(t, 10*time.Minute, db.getConfigDuration("duration_direct", time.Hour))
	assert.Equal(t, time.Hour, db.getConfigDuration("missing_key", time.Hour))
	assert.Equal(t, time.Hour, db.getConfigDuration("invalid_string", time.Hour))
	assert.Equal(t, time.Hour, db.getConfigDuration("int_key", time.Hour))
}

func TestDatabase_isRetryableError(t *testing.T) {
	tests := []struct {
		name        string
		errorMsg    string
		shouldRetry bool
	}{
		{name: "Connection refused", errorMsg: "dial tcp: connection refused", shouldRetry: true},
		{name: "Connection reset", errorMsg: "connection reset by peer", shouldRetry: true},
		{name: "Deadlock detected", errorMsg: "deadlock detected", shouldRetry: true},
		{name: "Too many connections", errorMsg: "too many connections", shouldRetry: true},
		{name: "Starting up", errorMsg: "FATAL: the database system is starting up", shouldRetry: true},
		{name: "Case insensitive matching", errorMsg: "CONNECTION REFUSED", shouldRetry: true},
		{name: "Authentication failure", errorMsg: "password authentication failed", shouldRetry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldRetry, isRetryableError(&mockError{message: tt.errorMsg}))
		})
	}

	assert.False(t, isRetryableError(nil))
}

func TestDatabase_containsIgnoreCase(t *testing.T) {
	assert.True(t, containsIgnoreCase("error: Connection Refused by server", "connection refused"))
	assert.True(t, containsIgnoreCase("test", ""))
	assert.False(t, containsIgnoreCase("syntax error", "connection refused"))
	assert.False(t, containsIgnoreCase("abc", "abcd"))
}

func TestDatabase_SQLiteLifecycle(t *testing.T) {
	db := NewDatabase(map[string]interface{}{
		"driver":    "sqlite",
		"path":      ":memory:",
		"log_level": "silent",
	}, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, db.Connect(ctx))
	require.NotNil(t, db.DB())

	assert.NoError(t, db.Health(ctx))

	var fk int
	require.NoError(t, db.DB().Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	// Tables survive across statements on the single shared connection
	require.NoError(t, db.DB().Exec("CREATE TABLE health_check (id INTEGER)").Error)
	assert.True(t, db.DB().Migrator().HasTable("health_check"))

	require.NoError(t, db.Close())
	assert.Nil(t, db.DB())

	// Multiple closes should be safe
	assert.NoError(t, db.Close())
}

func TestDatabase_OperationsWithoutConnection(t *testing.T) {
	db := NewDatabase(map[string]interface{}{}, zerolog.Nop())

	err := db.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database not connected")
}

// Mock error for testing error handling
type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
