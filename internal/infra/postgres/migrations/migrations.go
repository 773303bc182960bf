package migrations

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations holds the schema for exercises and submissions, applied in file-name order.
var Migrations = migrate.NewMigrations()
