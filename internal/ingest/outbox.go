package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusConsumed   = "consumed"
	statusFailed     = "failed"
)

// FailedEvent is a row that exhausted processing, surfaced for operators.
type FailedEvent struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	EntityKey string    `json:"entity_key"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
}

// Outbox reads and settles rows in the sync_events table. Events are
// written by the web application inside its own transactions, so a row
// exists if and only if the change it describes was committed.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Publish inserts a pending event. Handlers use it for follow-up work that
// must survive a restart, and tests use it to seed the pipeline.
func (o *Outbox) Publish(ctx context.Context, topic, entityKey string, payload []byte) error {
	if o.pool == nil {
		return errors.New("outbox not configured")
	}
	_, err := o.pool.Exec(ctx, `
		INSERT INTO sync_events (id, topic, entity_key, payload)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), topic, entityKey, payload)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// ClaimPending moves up to limit pending rows to processing and returns
// them, oldest first. SKIP LOCKED keeps concurrent claimers from blocking
// on each other. An empty slice means the outbox is drained.
func (o *Outbox) ClaimPending(ctx context.Context, limit int) ([]Event, error) {
	if o.pool == nil {
		return nil, errors.New("outbox not configured")
	}
	rows, err := o.pool.Query(ctx, `
		UPDATE sync_events
		SET status = $3
		WHERE id IN (
			SELECT id FROM sync_events
			WHERE status = $1
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, entity_key, payload, created_at
	`, statusPending, limit, statusProcessing)
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev        Event
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.EntityKey, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if createdAt.Valid {
			ev.CreatedAt = createdAt.Time
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

// RecoverStale returns rows stranded in processing by a crash to pending.
// Called once on startup, before the first claim.
func (o *Outbox) RecoverStale(ctx context.Context) (int64, error) {
	tag, err := o.pool.Exec(ctx, `
		UPDATE sync_events SET status = $2 WHERE status = $1
	`, statusProcessing, statusPending)
	if err != nil {
		return 0, fmt.Errorf("recover stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkConsumed settles a processed row.
func (o *Outbox) MarkConsumed(ctx context.Context, id string) error {
	_, err := o.pool.Exec(ctx, `
		UPDATE sync_events
		SET status = $2, consumed_at = now(), last_error = ''
		WHERE id = $1
	`, id, statusConsumed)
	if err != nil {
		return fmt.Errorf("mark event consumed: %w", err)
	}
	return nil
}

// MarkFailed records why a row could not be processed. Failed rows stay in
// the table for inspection and are not retried automatically.
func (o *Outbox) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := o.pool.Exec(ctx, `
		UPDATE sync_events
		SET status = $2, consumed_at = now(), last_error = $3
		WHERE id = $1
	`, id, statusFailed, reason)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// ListFailed returns the most recent failed rows for the admin surface.
func (o *Outbox) ListFailed(ctx context.Context, limit int) ([]FailedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.pool.Query(ctx, `
		SELECT id, topic, entity_key, last_error, created_at
		FROM sync_events
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, statusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	defer rows.Close()

	var failed []FailedEvent
	for rows.Next() {
		var (
			f         FailedEvent
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&f.ID, &f.Topic, &f.EntityKey, &f.LastError, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failed event: %w", err)
		}
		if createdAt.Valid {
			f.CreatedAt = createdAt.Time
		}
		failed = append(failed, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	return failed, nil
}
