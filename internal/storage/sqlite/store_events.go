package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mealcycle/mealcycle/internal/domain/event"
	"github.com/mealcycle/mealcycle/internal/storage"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// AppendEvents atomically appends a batch of events for one user. Sequence
// numbers come from the per-user counter row, so concurrent writers for
// different users never contend on the same counter. When the outbox is
// enabled each appended event also gets a pending projection-apply row in the
// same transaction.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event batch is empty")
	}

	userID := strings.TrimSpace(events[0].UserID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	for i := range events {
		if strings.TrimSpace(events[i].UserID) != userID {
			return nil, fmt.Errorf("event batch spans users %q and %q", userID, events[i].UserID)
		}
		if !events[i].Type.IsRegistered() {
			return nil, fmt.Errorf("unregistered event type %q", events[i].Type)
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO plan_event_seq (user_id, next_seq) VALUES (?, 1)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("init event seq: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(
		ctx,
		`SELECT next_seq FROM plan_event_seq WHERE user_id = ?`,
		userID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("get event seq: %w", err)
	}

	appended := make([]event.Event, len(events))
	for i, evt := range events {
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now().UTC()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
		evt.Seq = uint64(next)
		next++

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO plan_events (user_id, seq, timestamp, event_type, request_id, entity_id, payload_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			evt.UserID,
			int64(evt.Seq),
			toMillis(evt.Timestamp),
			string(evt.Type),
			evt.RequestID,
			evt.EntityID,
			evt.PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("append event %s/%d: %w", evt.UserID, evt.Seq, err)
		}

		if err := s.enqueueProjectionApplyOutbox(ctx, tx, evt); err != nil {
			return nil, err
		}

		appended[i] = evt
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE plan_event_seq SET next_seq = ? WHERE user_id = ?`,
		next,
		userID,
	); err != nil {
		return nil, fmt.Errorf("advance event seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return appended, nil
}

// ListEvents returns a user's journal in commit order.
func (s *Store) ListEvents(ctx context.Context, userID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.db().QueryContext(
		ctx,
		`SELECT user_id, seq, timestamp, event_type, request_id, entity_id, payload_json
		 FROM plan_events
		 WHERE user_id = ?
		 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetEventBySeq returns one journal entry.
func (s *Store) GetEventBySeq(ctx context.Context, userID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	row := s.db().QueryRowContext(
		ctx,
		`SELECT user_id, seq, timestamp, event_type, request_id, entity_id, payload_json
		 FROM plan_events
		 WHERE user_id = ? AND seq = ?`,
		userID,
		int64(seq),
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	return evt, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		timestamp int64
		eventType string
	)
	if err := row.Scan(
		&evt.UserID,
		&seq,
		&timestamp,
		&eventType,
		&evt.RequestID,
		&evt.EntityID,
		&evt.PayloadJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(timestamp)
	evt.Type = event.Type(eventType)
	return evt, nil
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
