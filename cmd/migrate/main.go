package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/migrate"
)

// Usage:
//
//	migrate [-dir path] up|down|status|to <version>
//	migrate [-dir path] create <name>
//	migrate [-dir path] validate
//
// Without -dir, database commands use the migrations embedded in the binary
// and create/validate use pkg/migrate/migrations.
func main() {
	dir := flag.String("dir", "", "migrations directory (default: embedded)")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fail("missing command: up|down|status|to|create|validate")
	}
	cmd := args[0]

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", cmd)

	switch cmd {
	case "create":
		if len(args) < 2 {
			fail("usage: migrate create <name>")
		}
		path, err := migrate.CreateSQLMigration(orDefault(*dir), args[1])
		if err != nil {
			fail(err.Error())
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(orDefault(*dir)); err != nil {
			fail(err.Error())
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	logg = logger.New(logger.Options{ServiceName: "migrate", Level: logger.ParseLevel(cfg.App.LogLevel)})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql handle", err)
	migrator, err := migrate.New(sqlDB, cfg.DB.Driver, migrate.Source(*dir))
	requireResource(ctx, logg, "migrator", err)

	var ran []migrate.Applied
	switch cmd {
	case "up":
		ran, err = migrator.Up(ctx)
	case "down":
		ran, err = migrator.Down(ctx)
	case "to":
		if len(args) < 2 {
			fail("usage: migrate to <YYYYMMDDHHMMSS>")
		}
		ran, err = migrator.To(ctx, args[1])
	case "status":
		statuses, err := migrator.Status(ctx)
		requireResource(ctx, logg, "migration status", err)
		printStatus(statuses)
		return
	default:
		fail("unknown command " + cmd)
	}
	for _, m := range ran {
		direction := "up"
		if m.Down {
			direction = "down"
		}
		fmt.Printf("%-4s %d %s\n", direction, m.Version, m.Path)
	}
	requireResource(ctx, logg, "migration "+cmd, err)
	logg.Info(logg.WithField(ctx, "applied", len(ran)), "migrations done")
}

func printStatus(statuses []*goose.MigrationStatus) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	_ = w.Flush()
}

func orDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
