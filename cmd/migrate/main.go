// migrate creates or updates the database schema for the suggestion
// engine. It reads the storage driver and DSN from the environment and
// supports postgres and sqlite3.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"tasksense/internal/config"
	"tasksense/internal/storage"
)

func main() {
	driver := flag.String("driver", "", "database driver (postgres or sqlite3), overrides config")
	dsn := flag.String("dsn", "", "database DSN, overrides config")
	timeout := flag.Duration("timeout", 30*time.Second, "migration timeout")
	flag.Parse()

	if err := run(*driver, *dsn, *timeout); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}

func run(driver, dsn string, timeout time.Duration) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if driver == "" {
		driver = cfg.Storage.Driver
	}
	if dsn == "" {
		dsn = cfg.Storage.DSN
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Printf("failed to close database: %v", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	if err := storage.ApplySchema(ctx, db); err != nil {
		return err
	}

	log.Printf("schema applied (%s)", driver)
	return nil
}
