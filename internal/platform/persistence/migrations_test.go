package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMigrations_RequiresInputs(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		path    string
		wantErr string
	}{
		{name: "no path", url: "postgres://dispatch@localhost/dispatch_ledger", wantErr: "migrations path cannot be empty"},
		{name: "no url", path: "migrations/postgres", wantErr: "database URL cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, RunMigrations(tt.url, tt.path), tt.wantErr)
		})
	}
}

func TestMigrationSourceURL(t *testing.T) {
	assert.Equal(t, "file://migrations/postgres", migrationSourceURL("migrations/postgres"))
	assert.Equal(t, "file:///srv/dispatch/migrations", migrationSourceURL("file:///srv/dispatch/migrations"))
}
