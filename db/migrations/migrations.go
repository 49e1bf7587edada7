package migrations

import (
	"database/sql"
	"embed"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
)

//go:embed sql/*.sql
var embedMigrations embed.FS

// Run applies all pending migrations.
func Run(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return eris.Wrap(err, "migrations: set dialect")
	}
	if err := goose.Up(db, "sql"); err != nil {
		return eris.Wrap(err, "migrations: up")
	}
	return nil
}
