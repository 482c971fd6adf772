// Package audit stores bridge lifecycle events in the bridge_events table
// and serves them back for the events API.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-enip/internal/bridges/enip"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// EventLog is a stored lifecycle event.
type EventLog struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Device    string         `json:"device,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which events List returns.
type Filter struct {
	Type   string // optional: exact event type
	RunID  string // optional: one bridge run
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []EventLog `json:"events"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the event log operations.
type Repository interface {
	Create(ctx context.Context, e *EventLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository persists events in SQLite. It also satisfies
// enip.EventRecorder so the supervisor can write to it directly.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordEvent stores a supervisor lifecycle event.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, e enip.Event) error {
	return r.Create(ctx, &EventLog{
		Type:      string(e.Type),
		RunID:     e.RunID,
		Device:    e.Device,
		Message:   e.Message,
		Details:   e.Details,
		CreatedAt: e.Timestamp,
	})
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *EventLog) error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bridge_events (id, type, run_id, device, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type,
		nullableString(e.RunID), nullableString(e.Device), nullableString(e.Message),
		details,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM bridge_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := "SELECT id, type, run_id, device, message, details, created_at FROM bridge_events " + //nolint:gosec // as above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []EventLog{}
	for rows.Next() {
		var e EventLog
		var runID, device, message, details sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Type, &runID, &device, &message, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.RunID = runID.String
		e.Device = device.String
		e.Message = message.String
		if details.Valid && details.String != "" {
			var m map[string]any
			if json.Unmarshal([]byte(details.String), &m) == nil {
				e.Details = m
			}
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
