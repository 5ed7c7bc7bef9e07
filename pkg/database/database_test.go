package database_test

import (
	"errors"
	"testing"

	"github.com/OldStager01/elastic-orchestrator/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
		want string
	}{
		{
			name: "default ssl mode",
			cfg:  database.Config{Host: "localhost", Port: 5432, User: "admin", Password: "pw", Name: "orchestrator"},
			want: "host=localhost port=5432 user=admin password=pw dbname=orchestrator sslmode=disable application_name=elastic-orchestrator",
		},
		{
			name: "explicit ssl mode",
			cfg:  database.Config{Host: "db", Port: 6543, User: "u", Password: "p", Name: "n", SSLMode: "require"},
			want: "host=db port=6543 user=u password=p dbname=n sslmode=require application_name=elastic-orchestrator",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}

func TestMigratorFiles(t *testing.T) {
	files, err := database.NewMigrator(nil).Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
}

func TestSchemaError(t *testing.T) {
	tests := []struct {
		name    string
		missing []string
		want    string
	}{
		{
			name:    "one table",
			missing: []string{"policy_events"},
			want:    "event store schema missing: policy_events (run `orchestrator migrate`)",
		},
		{
			name:    "all tables",
			missing: database.RequiredTables,
			want:    "event store schema missing: events, policy_events (run `orchestrator migrate`)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error = &database.SchemaError{Missing: tt.missing}
			assert.EqualError(t, err, tt.want)
			assert.ErrorIs(t, err, database.ErrSchemaMissing)

			var schemaErr *database.SchemaError
			require.True(t, errors.As(err, &schemaErr))
			assert.Equal(t, tt.missing, schemaErr.Missing)
		})
	}
}
