package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"

	"pitchgate.app/internal/balance"
	"pitchgate.app/internal/migrate"
)

func main() {
	log.SetFlags(0)
	dsn := pflag.String("dsn", os.Getenv("PITCHGATE_BALANCE_DSN"), "PostgreSQL DSN of the balance store")
	pflag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via --dsn or PITCHGATE_BALANCE_DSN")
	}
	if pflag.NArg() == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, balance.Schema, "migrations", "seeds")

	switch pflag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		log.Fatalf("unknown command %q", pflag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", pflag.Arg(0), err)
	}
}
