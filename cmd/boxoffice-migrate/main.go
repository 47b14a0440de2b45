// boxoffice-migrate manages the sale stream schema outside the service
// process.
//
//	boxoffice-migrate up        apply pending migrations
//	boxoffice-migrate down      roll every migration back
//	boxoffice-migrate version   print the current schema version
//	boxoffice-migrate seed      insert sample sales into both streams
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/sales/db"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		count int
		day   string
		seed  int64
		quiet bool
	)

	flagSet := pflag.NewFlagSet("boxoffice-migrate", pflag.ContinueOnError)
	flagSet.IntVar(&count, "count", 40, "number of sales to seed per stream")
	flagSet.StringVar(&day, "date", "", "performance date for seeded sales, YYYY-MM-DD (default: today)")
	flagSet.Int64Var(&seed, "seed", 0, "random seed for sample data (default: current time)")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() != 1 {
		printHelp(flagSet)
		if help {
			return nil
		}
		return errors.New("expected exactly one command")
	}

	opts := logger.Options{Dir: "logs", Prefix: "migrate", Terminal: os.Stdout}
	if quiet {
		opts.MinLevel = logger.WARN
	}
	log, err := logger.New(opts)
	if err != nil {
		return err
	}
	defer log.Close()

	if err := godotenv.Load(); err == nil {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dsn, err := cfg.Store.DSN()
	if err != nil {
		return err
	}
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}

	runner := migrations.NewRunner(sqldb, log)
	defer runner.Close()

	switch command := flagSet.Arg(0); command {
	case "up":
		return runner.RunMigrations()
	case "down":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		log.Info("MIGRATE", "All migrations rolled back")
		return nil
	case "version":
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	case "seed":
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		performance := time.Now().UTC()
		if day != "" {
			performance, err = time.Parse("2006-01-02", day)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", day, err)
			}
		}
		if err := runner.RunMigrations(); err != nil {
			return err
		}
		store := &db.DB{Bun: bun.NewDB(sqldb, pgdialect.New())}
		tables := []string{cfg.Streams.SalesTable, cfg.Streams.LiveTable}
		return seedStreams(ctx, store, tables, SampleSales(count, performance, time.Now().UTC(), seed), log)
	default:
		printHelp(flagSet)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "Usage: boxoffice-migrate [flags] up|down|version|seed")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	flagSet.PrintDefaults()
}
