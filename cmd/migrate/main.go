package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orders-ms/internal/storage/postgres"
)

const (
	envPostgresDSN = "ORDERS_POSTGRES_DSN"
	runTimeout     = 30 * time.Second
)

func main() {
	var (
		direction = flag.String("direction", "up", "up|down|status")
		steps     = flag.Int("steps", 0, "how many revisions to apply (0 = all) or roll back (0 = one)")
		dsn       = flag.String("dsn", "", "PostgreSQL DSN, defaults to $"+envPostgresDSN)
	)
	flag.Parse()

	target := strings.TrimSpace(*dsn)
	if target == "" {
		target = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}
	if target == "" {
		fail("postgres dsn is required: pass -dsn or set %s", envPostgresDSN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, target)
	if err != nil {
		fail("connect to postgres: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, strings.ToLower(strings.TrimSpace(*direction)), *steps); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, store *postgres.Store, direction string, steps int) error {
	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "status":
	default:
		return fmt.Errorf("unknown direction %q, expected up, down or status", direction)
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	fmt.Printf("schema version %d, %d revision(s) applied\n", version, applied)
	return nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
