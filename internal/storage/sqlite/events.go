package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

const eventColumns = "seq, id, type, batch_id, account, asset, amount, reason, reference, actor, created_at, published_at"

// InsertEvent appends an event to the outbox and fills in its sequence number.
func (t *sqliteTx) InsertEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO events (id, type, batch_id, account, asset, amount, reason, reference, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.BatchID, addr(e.Account), addr(e.Asset), e.Amount,
		e.Reason, e.Reference, addr(e.Actor), toUnix(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}
	e.Seq = seq
	return nil
}

// ListEvents returns events in sequence order.
func (t *sqliteTx) ListEvents(ctx context.Context, f storage.EventFilter) ([]*models.Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT " + eventColumns + " FROM events WHERE seq > ?"
	args := []any{f.AfterSeq}
	if f.BatchID != "" {
		query += " AND batch_id = ?"
		args = append(args, f.BatchID)
	}
	query += " ORDER BY seq LIMIT ?"
	args = append(args, limit)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return scanEvents(rows)
}

// ListUnpublishedEvents returns the oldest events the relay has not delivered.
func (t *sqliteTx) ListUnpublishedEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE published_at = 0 ORDER BY seq LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unpublished events: %w", err)
	}
	return scanEvents(rows)
}

// MarkEventsPublished stamps the given events as delivered.
func (t *sqliteTx) MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	// Build the IN clause with placeholders
	query := `UPDATE events SET published_at = ? WHERE id IN (?` + repeatPlaceholder(len(ids)-1) + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, toUnix(at))
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e := &models.Event{}
		var typ, account, asset, actor string
		var createdAt, publishedAt int64
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &e.BatchID, &account, &asset, &e.Amount,
			&e.Reason, &e.Reference, &actor, &createdAt, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(typ)
		e.Account = parseAddr(account)
		e.Asset = parseAddr(asset)
		e.Actor = parseAddr(actor)
		e.CreatedAt = fromUnix(createdAt)
		e.PublishedAt = fromUnix(publishedAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// repeatPlaceholder returns a string of ", ?" repeated n times.
// Used for building IN clauses with multiple placeholders.
func repeatPlaceholder(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(", ?", n)
}
