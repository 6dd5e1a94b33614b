package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/larder/internal/apperr"
)

//go:embed migrations/*.sql
var migrations embed.FS

// LatestVersion is the newest schema version shipped with this build.
const LatestVersion int64 = 2

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Open opens a SQLite database at the given path and migrates it to LatestVersion.
func Open(dbPath string) (*sql.DB, error) {
	return OpenVersion(dbPath, LatestVersion)
}

// OpenVersion opens a SQLite database and migrates it to exactly version.
// It fails with a *apperr.SchemaError when no additive path to version exists.
func OpenVersion(dbPath string, version int64) (*sql.DB, error) {
	db, err := Connect(dbPath)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, migrations, version); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Connect opens a SQLite database without migrating it.
func Connect(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer per device; this also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Migrate applies the up migrations found in fsys/migrations until version.
func Migrate(db *sql.DB, fsys fs.FS, version int64) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	available, err := goose.CollectMigrations("migrations", 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	var newest int64
	if len(available) > 0 {
		newest = available[len(available)-1].Version
	}

	switch {
	case version > newest:
		return &apperr.SchemaError{Current: current, Requested: version, Reason: fmt.Sprintf("newest known migration is %d", newest)}
	case current > version:
		return &apperr.SchemaError{Current: current, Requested: version, Reason: "downgrades are not supported"}
	case current == version:
		return nil
	}

	if err := goose.UpTo(db, "migrations", version); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
