package engine

import (
	"context"
	"fmt"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/stats"
)

const (
	// statsPageSize is the store page size used when collecting records for
	// aggregation.
	statsPageSize = 200
	// maxStatsPages bounds a single aggregation read so a runaway filter can
	// never stream the whole table.
	maxStatsPages = 25
	// platformStatsWindow scopes system-wide statistics to recent records.
	platformStatsWindow = 24 * time.Hour
)

// JobStats aggregates every record belonging to the job, expired ones
// included, into counts, cost, quality and throughput figures.
func (e *Engine) JobStats(ctx context.Context, jobID string) (stats.Summary, error) {
	records, err := e.collect(ctx, domain.Query{JobID: jobID, IncludeExpired: true})
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Reduce(records, e.now(), stats.Options{}), nil
}

// JobProgress reports how much of the job's generation work has reached a
// settled state.
func (e *Engine) JobProgress(ctx context.Context, jobID string) (stats.JobProgress, error) {
	records, err := e.collect(ctx, domain.Query{JobID: jobID, IncludeExpired: true})
	if err != nil {
		return stats.JobProgress{}, err
	}
	return stats.Progress(records), nil
}

// PlatformStats aggregates all records created in the last 24 hours. The
// result is an eventually-consistent snapshot: records mutated while the pages
// stream are picked up on the next read.
func (e *Engine) PlatformStats(ctx context.Context) (stats.Summary, error) {
	now := e.now()
	q := domain.Query{
		CreatedAfter:   now.Add(-platformStatsWindow),
		IncludeExpired: true,
	}
	records, err := e.collect(ctx, q)
	if err != nil {
		return stats.Summary{}, err
	}
	return stats.Reduce(records, now, stats.Options{}), nil
}

// collect pages through the store and materializes matching records for a
// pure reducer pass.
func (e *Engine) collect(ctx context.Context, q domain.Query) ([]domain.GenerationRecord, error) {
	q.PageSize = statsPageSize

	var out []domain.GenerationRecord
	for page := 0; page < maxStatsPages; page++ {
		res, err := e.store.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("collect records: %w", err)
		}
		for _, rec := range res.Records {
			out = append(out, *rec)
		}
		if !res.HasMore {
			return out, nil
		}
		q.Cursor = res.NextCursor
	}
	return out, nil
}
