package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/crmflow/api/internal/db"
	"github.com/crmflow/api/migrations"
)

func main() {
	_ = godotenv.Load()

	command := flag.String("command", "up", "up, down or status")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if *command == "up" {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("applied %d migration(s): %v\n", len(applied), applied)
		return
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		log.Fatalf("goose provider: %v", err)
	}

	switch *command {
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			log.Fatalf("goose down: %v", err)
		}
		if result != nil {
			fmt.Printf("rolled back %d\n", result.Source.Version)
		}
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatalf("goose status: %v", err)
		}
		for _, s := range statuses {
			fmt.Printf("%-6d %-8s %s\n", s.Source.Version, s.State, s.Source.Path)
		}
	default:
		log.Fatalf("unknown command %q", *command)
	}
}
