package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/infra"
	"mediagen/internal/infra/credentials"
)

func main() {
	var (
		tokenFlag    string
		providerFlag string
	)
	flag.StringVar(&tokenFlag, "token", "", "API token for the provider (falls back to PROVIDER_TOKEN)")
	flag.StringVar(&providerFlag, "provider", "remote", "provider name the worker resolves tokens under")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	if provider == "" {
		provider = "remote"
	}

	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("PROVIDER_TOKEN"))
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "a token is required via -token or PROVIDER_TOKEN")
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", os.Getenv("APP_ENV")).With().Str("cmd", "providertoken").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	execCtx, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetToken(execCtx, provider, token); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store %s token: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("token for provider %q stored\n", provider)
}
