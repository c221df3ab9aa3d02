package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DigestRun struct {
	ID          string
	WindowStart time.Time
	WindowEnd   time.Time
	Deliveries  int
	Sent        bool
	CreatedAt   time.Time
}

func (s *Store) RecordDigestRun(ctx context.Context, windowStart, windowEnd time.Time, deliveries int, sent bool) (DigestRun, error) {
	run := DigestRun{
		ID:          "dgr_" + uuid.NewString(),
		WindowStart: windowStart.UTC(),
		WindowEnd:   windowEnd.UTC(),
		Deliveries:  deliveries,
		Sent:        sent,
		CreatedAt:   time.Now().UTC(),
	}
	sentFlag := 0
	if sent {
		sentFlag = 1
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO digest_runs (id, window_start_unix, window_end_unix, deliveries, sent, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WindowStart.Unix(),
		run.WindowEnd.Unix(),
		run.Deliveries,
		sentFlag,
		run.CreatedAt.Unix(),
	)
	if err != nil {
		return DigestRun{}, fmt.Errorf("insert digest run: %w", err)
	}
	return run, nil
}

// LastDigestRun returns the most recent run, or false when no digest ran yet.
func (s *Store) LastDigestRun(ctx context.Context) (DigestRun, bool, error) {
	var (
		run                   DigestRun
		startUnix, endUnix    int64
		sentFlag, createdUnix int64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, window_start_unix, window_end_unix, deliveries, sent, created_at_unix
		 FROM digest_runs
		 ORDER BY window_end_unix DESC, rowid DESC
		 LIMIT 1`,
	).Scan(&run.ID, &startUnix, &endUnix, &run.Deliveries, &sentFlag, &createdUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return DigestRun{}, false, nil
	}
	if err != nil {
		return DigestRun{}, false, fmt.Errorf("lookup last digest run: %w", err)
	}
	run.WindowStart = time.Unix(startUnix, 0).UTC()
	run.WindowEnd = time.Unix(endUnix, 0).UTC()
	run.Sent = sentFlag == 1
	run.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return run, true, nil
}
