package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/app?sslmode=disable", migrationURL("postgres://u:p@localhost:5432/app?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/app", migrationURL("postgresql://localhost/app"))
	assert.Equal(t, "pgx5://already", migrationURL("pgx5://already"))
}
