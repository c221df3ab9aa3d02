package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Delivery struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Event         string    `json:"event,omitempty"`
	Outcome       string    `json:"outcome"`
	Targets       []int64   `json:"targets,omitempty"`
	FailedTargets []int64   `json:"failed_targets,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type RecordDeliveryInput struct {
	Source        string
	Event         string
	Outcome       string
	Targets       []int64
	FailedTargets []int64
	Summary       string
	Error         string
}

// OutcomeCount is the number of deliveries per source and outcome in a window.
type OutcomeCount struct {
	Source  string `json:"source"`
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

func (s *Store) RecordDelivery(ctx context.Context, input RecordDeliveryInput) (Delivery, error) {
	source := strings.ToLower(strings.TrimSpace(input.Source))
	outcome := strings.ToLower(strings.TrimSpace(input.Outcome))
	if source == "" || outcome == "" {
		return Delivery{}, fmt.Errorf("delivery source and outcome are required")
	}
	delivery := Delivery{
		ID:            "dlv_" + uuid.NewString(),
		Source:        source,
		Event:         strings.TrimSpace(input.Event),
		Outcome:       outcome,
		Targets:       input.Targets,
		FailedTargets: input.FailedTargets,
		Summary:       strings.TrimSpace(input.Summary),
		Error:         strings.TrimSpace(input.Error),
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO deliveries (id, source, event, outcome, targets, failed_targets, summary, error_message, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.ID,
		delivery.Source,
		nullIfEmpty(delivery.Event),
		delivery.Outcome,
		joinIDs(delivery.Targets),
		joinIDs(delivery.FailedTargets),
		delivery.Summary,
		nullIfEmpty(delivery.Error),
		delivery.CreatedAt.Unix(),
	)
	if err != nil {
		return Delivery{}, fmt.Errorf("insert delivery: %w", err)
	}
	return delivery, nil
}

func (s *Store) ListRecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source, event, outcome, targets, failed_targets, summary, error_message, created_at_unix
		 FROM deliveries
		 ORDER BY created_at_unix DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	results := []Delivery{}
	for rows.Next() {
		var (
			delivery      Delivery
			event         sql.NullString
			targets       string
			failedTargets string
			errorMessage  sql.NullString
			createdAtUnix int64
		)
		if err := rows.Scan(
			&delivery.ID,
			&delivery.Source,
			&event,
			&delivery.Outcome,
			&targets,
			&failedTargets,
			&delivery.Summary,
			&errorMessage,
			&createdAtUnix,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		delivery.Event = event.String
		delivery.Error = errorMessage.String
		delivery.Targets = splitIDs(targets)
		delivery.FailedTargets = splitIDs(failedTargets)
		delivery.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		results = append(results, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return results, nil
}

// CountDeliveriesSince groups deliveries created at or after since by source and outcome.
func (s *Store) CountDeliveriesSince(ctx context.Context, since time.Time) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source, outcome, COUNT(*)
		 FROM deliveries
		 WHERE created_at_unix >= ?
		 GROUP BY source, outcome
		 ORDER BY source, outcome`,
		since.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	results := []OutcomeCount{}
	for rows.Next() {
		var item OutcomeCount
		if err := rows.Scan(&item.Source, &item.Outcome, &item.Count); err != nil {
			return nil, fmt.Errorf("scan delivery count: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery counts: %w", err)
	}
	return results, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func splitIDs(value string) []int64 {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
