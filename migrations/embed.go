// Package migrations embeds SQL migration files into the binary so the
// hub can migrate its schema without the files present on disk.
package migrations

import (
	"embed"

	"github.com/mihai-mura/wolhub/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files are at the root of the embedded FS
}
