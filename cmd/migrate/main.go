package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authgrid.org/internal/migrate"
	"authgrid.org/internal/rbac"
	"authgrid.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("AUTHGRID_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or AUTHGRID_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|bootstrap]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap":
		err = bootstrapAdmin(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapAdmin creates the first administrator with the builtin
// permission graph granted in full. It only works on an empty
// deployment; run it once after the initial "up" and "seed".
func bootstrapAdmin(ctx context.Context, db *sql.DB) error {
	userName := os.Getenv("AUTHGRID_BOOTSTRAP_USER")
	if userName == "" {
		userName = "admin.root"
	}
	password := os.Getenv("AUTHGRID_BOOTSTRAP_PASSWORD")
	if password == "" {
		return fmt.Errorf("missing AUTHGRID_BOOTSTRAP_PASSWORD")
	}

	svc, err := rbac.NewService(pg.NewStore(db))
	if err != nil {
		return err
	}
	admin, err := svc.Bootstrap(ctx, userName, password)
	if err != nil {
		return err
	}
	log.Printf("bootstrap: created administrator %s (id %d)", admin.UserName, admin.ID)
	return nil
}
