package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/receipt-ledger/internal/api"
	"github.com/insightdelivered/receipt-ledger/internal/extractor"
	"github.com/insightdelivered/receipt-ledger/internal/ledger"
	"github.com/insightdelivered/receipt-ledger/internal/logger"
	"github.com/insightdelivered/receipt-ledger/internal/patterns"
	"github.com/insightdelivered/receipt-ledger/internal/pipeline"
	"github.com/insightdelivered/receipt-ledger/internal/report"
	"github.com/insightdelivered/receipt-ledger/internal/resolver"
)

const version = "1.0.0"

func main() {
	serveFlag := flag.Bool("serve", false, "Run the HTTP API instead of processing files")
	addrFlag := flag.String("addr", ":8080", "HTTP listen address (with --serve)")
	exportFlag := flag.String("export", "", "Write an Excel report of the ledger to this path and exit")
	patternsFlag := flag.String("patterns", "", "YAML file with extraction patterns (built-in defaults if omitted)")
	statsFlag := flag.Bool("stats", false, "Print ledger statistics and exit")
	levelFlag := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Receipt Ledger
by Insight Delivered

Reads bank transfer receipts (PDF or text), matches payments to clients
and keeps a running debt ledger in PostgreSQL.

Usage:
  receipt-ledger [flags] <receipt.pdf> [receipt2.pdf ...]
  receipt-ledger --serve
  receipt-ledger --export=ledger.xlsx

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Environment:
  DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME
  A .env file in the working directory is loaded when present.

Examples:
  # Process a batch of receipts interactively
  receipt-ledger march/*.pdf

  # Run the HTTP API
  receipt-ledger --serve --addr=:8080

  # Export the ledger for the accountant
  receipt-ledger --export=ledger.xlsx
`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("receipt-ledger v%s\n", version)
		os.Exit(0)
	}
	if *helpFlag {
		flag.Usage()
		os.Exit(0)
	}

	log := logger.New(*levelFlag)
	ctx := context.Background()

	cfg, err := loadPatterns(*patternsFlag)
	if err != nil {
		fatalf("Pattern config: %v\n", err)
	}

	_ = godotenv.Load()
	pool, err := connectDB(ctx)
	if err != nil {
		fatalf("Database connection failed: %v\n", err)
	}
	defer pool.Close()

	store := ledger.New(pool)
	if err := store.Init(ctx); err != nil {
		fatalf("Schema init failed: %v\n", err)
	}

	switch {
	case *serveFlag:
		app := fiber.New(fiber.Config{AppName: "receipt-ledger v" + version})
		api.NewServer(store, extractor.New(), cfg, log).RegisterRoutes(app)
		log.Info().Str("addr", *addrFlag).Msg("HTTP API listening")
		if err := app.Listen(*addrFlag); err != nil {
			fatalf("Server failed: %v\n", err)
		}

	case *exportFlag != "":
		if err := report.WriteExcelFile(ctx, store, *exportFlag); err != nil {
			fatalf("Export failed: %v\n", err)
		}
		fmt.Printf("Report written: %s\n", *exportFlag)

	case *statsFlag:
		stats, err := store.Stats(ctx)
		if err != nil {
			fatalf("Stats failed: %v\n", err)
		}
		fmt.Printf("Clients:  %d\nPayments: %d\nTotal:    %s rub.\n",
			stats.Clients, stats.Payments, stats.TotalAmount.StringFixed(2))

	default:
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(0)
		}
		proc := pipeline.New(pipeline.Config{
			Extractor: extractor.New(),
			Patterns:  cfg,
			Store:     store,
			Resolver:  resolver.New(store, askOperator),
			Logger:    log,
		})
		outcomes, err := proc.ProcessFiles(ctx, flag.Args())
		for _, out := range outcomes {
			fmt.Printf("%-20s %-20s %s\n", out.Document, out.Status, out.Message)
		}
		if err != nil {
			fatalf("Batch aborted: %v\n", err)
		}
	}
}

// connectDB builds the pool from DB_* environment variables.
func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		envOr("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_NAME", "receipts"),
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadPatterns(path string) (*patterns.Config, error) {
	if path == "" {
		return patterns.Default(), nil
	}
	return patterns.LoadFile(path)
}

// askOperator prompts on the terminal before a new client is created.
func askOperator(name string) resolver.Decision {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Client %q is not in the ledger. Create? [y/N]: ", name)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return resolver.Decision{}
	}

	for {
		fmt.Print("Starting debt (rub.): ")
		line, _ := reader.ReadString('\n')
		debt, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(line, ",", ".")))
		if err != nil || debt.IsNegative() {
			fmt.Println("Enter a non-negative number.")
			continue
		}
		return resolver.Decision{Accept: true, BaselineDebt: debt}
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
