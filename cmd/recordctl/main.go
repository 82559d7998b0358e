package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/cache"
	"mediagen/internal/config"
	"mediagen/internal/domain"
	"mediagen/internal/engine"
	"mediagen/internal/infra"
)

// recordctl is the operator's window into the generation store: inspect a
// record, summarize a job, or force a cancel/retry without going through the
// user-scoped HTTP API.
func main() {
	var (
		recordFlag   string
		jobFlag      string
		platformFlag bool
		cancelFlag   bool
		retryFlag    bool
		expireFlag   bool
	)
	flag.StringVar(&recordFlag, "record", "", "record ID to inspect")
	flag.StringVar(&jobFlag, "job", "", "job ID to summarize")
	flag.BoolVar(&platformFlag, "platform", false, "print the platform-wide summary")
	flag.BoolVar(&cancelFlag, "cancel", false, "cancel the record named by -record")
	flag.BoolVar(&retryFlag, "retry", false, "re-queue the failed record named by -record")
	flag.BoolVar(&expireFlag, "expire", false, "force-expire the record named by -record")
	flag.Parse()

	recordID := strings.TrimSpace(recordFlag)
	jobID := strings.TrimSpace(jobFlag)

	targets := 0
	if recordID != "" {
		targets++
	}
	if jobID != "" {
		targets++
	}
	if platformFlag {
		targets++
	}
	if targets != 1 {
		exitWithError(errors.New("exactly one of -record, -job or -platform must be provided"))
	}
	actions := 0
	for _, set := range []bool{cancelFlag, retryFlag, expireFlag} {
		if set {
			actions++
		}
	}
	if actions > 0 && recordID == "" {
		exitWithError(errors.New("-cancel, -retry and -expire require -record"))
	}
	if actions > 1 {
		exitWithError(errors.New("-cancel, -retry and -expire are mutually exclusive"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	engineCfg, err := config.Load(os.Getenv("ENGINE_CONFIG_PATH"))
	if err != nil {
		exitWithError(fmt.Errorf("invalid engine config: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", os.Getenv("APP_ENV")).With().Str("cmd", "recordctl").Logger()
	store := repo.NewRecordStore(infra.NewSQLRunner(pool, logger))
	eng := engine.New(store, cache.New(engineCfg.Cache.TTL()), engineCfg, logger)

	switch {
	case recordID != "":
		err = showRecord(ctx, eng, store, recordID, cancelFlag, retryFlag, expireFlag)
	case jobID != "":
		err = showJob(ctx, eng, jobID)
	default:
		err = showPlatform(ctx, eng)
	}
	if err != nil {
		exitWithError(err)
	}
}

func showRecord(ctx context.Context, eng *engine.Engine, store domain.RecordStore, id string, doCancel, doRetry, doExpire bool) error {
	var (
		rec *domain.GenerationRecord
		err error
	)
	switch {
	case doCancel:
		rec, err = eng.Cancel(ctx, id)
	case doRetry:
		rec, err = eng.Retry(ctx, id)
	case doExpire:
		rec, err = forceExpire(ctx, store, id)
	default:
		rec, err = eng.Get(ctx, id)
	}
	if err != nil {
		return err
	}
	return printJSON(rec)
}

// forceExpire moves a non-terminal record to EXPIRED regardless of its
// ExpiresAt. It writes through the store so the transition gate still applies;
// terminal records are rejected the same way the sweeper would skip them.
func forceExpire(ctx context.Context, store domain.RecordStore, id string) (*domain.GenerationRecord, error) {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	upd := domain.Update{Status: domain.Some(domain.StatusExpired)}
	return store.Update(ctx, id, rec.Version, upd, domain.DefaultPreserve())
}

func showJob(ctx context.Context, eng *engine.Engine, jobID string) error {
	progress, err := eng.JobProgress(ctx, jobID)
	if err != nil {
		return err
	}
	summary, err := eng.JobStats(ctx, jobID)
	if err != nil {
		return err
	}
	if err := printJSON(map[string]any{"jobId": jobID, "progress": progress, "summary": summary}); err != nil {
		return err
	}

	q := domain.Query{JobID: jobID, IncludeExpired: true, PageSize: 200}
	for {
		page, err := eng.Query(ctx, q)
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			fmt.Printf("%s  %-10s  %-15s  retries=%d  updated=%s\n",
				rec.ID, rec.Status, rec.ContentType, rec.RetryCount, rec.UpdatedAt.Format(time.RFC3339))
		}
		if !page.HasMore {
			return nil
		}
		q.Cursor = page.NextCursor
	}
}

func showPlatform(ctx context.Context, eng *engine.Engine) error {
	summary, err := eng.PlatformStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
