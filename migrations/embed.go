// Package migrations embeds the access node's SQL schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
