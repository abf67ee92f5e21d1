package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/insightchart/insightchart/internal/config"
	"github.com/insightchart/insightchart/internal/migrations"
	"github.com/insightchart/insightchart/internal/source"
)

func main() {
	direction := flag.String("direction", "up", "seed direction: up|down|status")
	steps := flag.Int("steps", 0, "number of scripts; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("insight-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Source.Driver != config.SourcePostgres {
		fmt.Fprintf(os.Stderr, "sample warehouse migrations require INSIGHT_SOURCE_DRIVER=postgres, got %q\n", cfg.Source.Driver)
		os.Exit(1)
	}
	if cfg.Source.DSN == "" {
		fmt.Fprintln(os.Stderr, "INSIGHT_SOURCE_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := source.OpenPostgres(ctx, source.DBConfig{DSN: cfg.Source.DSN, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	seeder := migrations.NewSeeder()
	switch *direction {
	case "up":
		applied, err := seeder.Apply(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d warehouse script(s)\n", applied)
	case "down":
		reverted, err := seeder.Revert(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("reverted %d warehouse script(s)\n", reverted)
	case "status":
		status, err := seeder.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(out))
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
