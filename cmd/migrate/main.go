// Command migrate applies the history schema to SQLITE_PATH.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"pooltemp/internal/config"
	"pooltemp/internal/db"
	"pooltemp/internal/logging"
	"pooltemp/internal/migrate"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n  migrate  apply pending schema migrations\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewWithWriter(os.Stderr, cfg, "dev", "migrate"))

	if !cfg.HistoryEnabled() {
		fmt.Fprintln(os.Stderr, "SQLITE_PATH or SQLITE_DSN must be set")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		conn, err := db.Open(cfg, slog.Default())
		if err != nil {
			fmt.Fprintf(os.Stderr, "db open: %v\n", err)
			os.Exit(1)
		}
		applied, err := migrate.Run(context.Background(), conn, slog.Default())
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("migrations applied: %d\n", len(applied))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
