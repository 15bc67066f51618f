// Command migrator applies the frl-proxy transaction log schema.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/technosupport/frl-toolbox/internal/config"
	"github.com/technosupport/frl-toolbox/internal/platform/paths"
)

func main() {
	upCmd := flag.Bool("up", false, "Run all up migrations")
	downCmd := flag.Bool("down", false, "Rollback all migrations")
	stepsCmd := flag.Int("steps", 0, "Run +/- steps")
	dir := flag.String("path", "db/migrations", "Directory holding the migration files")
	dsn := flag.String("dsn", "", "Postgres DSN (default: database.dsn from the proxy config)")
	cfgPath := flag.String("config", "", "Proxy config file")
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load(paths.ResolveConfigPath(*cfgPath))
		if err != nil {
			log.Fatalf("[migrator] config: %v", err)
		}
		*dsn = cfg.Database.DSN
	}
	if *dsn == "" {
		log.Fatal("[migrator] no database configured: pass -dsn or set FRL_PROXY_DB_DSN")
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("[migrator] Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("[migrator] Failed to ping database: %v", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("[migrator] Failed to create migrate driver: %v", err)
	}

	source, err := filepath.Abs(*dir)
	if err != nil {
		log.Fatalf("[migrator] migrations path: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		log.Fatalf("[migrator] migrations path: %v", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(source), "postgres", driver)
	if err != nil {
		log.Fatalf("[migrator] Failed to initialize migrate: %v", err)
	}

	start := time.Now()
	switch {
	case *upCmd:
		log.Println("[migrator] Running UP migrations...")
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("[migrator] Migration UP failed: %v", err)
		}
	case *downCmd:
		log.Println("[migrator] Running DOWN migrations...")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("[migrator] Migration DOWN failed: %v", err)
		}
	case *stepsCmd != 0:
		log.Printf("[migrator] Running %d steps...", *stepsCmd)
		if err := m.Steps(*stepsCmd); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("[migrator] Migration Steps failed: %v", err)
		}
	default:
		log.Println("[migrator] No command specified. Use -up, -down, or -steps.")
	}

	version, dirty, err := m.Version()
	if err != nil {
		log.Println("[migrator] No version found (empty db?).")
	} else {
		log.Printf("[migrator] Current Version: %d, Dirty: %v", version, dirty)
	}
	log.Printf("[migrator] Duration: %v", time.Since(start))
}
