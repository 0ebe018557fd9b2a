package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quantconsole/authcore/internal/eventlog"
)

// EventStore is the Postgres-backed security event log. Append-only: there
// is no update or delete path.
type EventStore struct {
	db DBTX
}

func NewEventStore(db DBTX) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Insert(ctx context.Context, event *eventlog.Event) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("encode event metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `INSERT INTO security_events
		(id, user_id, event_type, description, ip_address, user_agent, location, severity, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.UserID, event.EventType, event.Description,
		event.IP, event.UserAgent, nullString(event.Location),
		string(event.Severity), metadata, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}

	return nil
}

// Query returns one page of the user's events, newest first, plus the total
// count matching the filter.
func (s *EventStore) Query(ctx context.Context, userID string, filter eventlog.Filter, page, limit int) ([]*eventlog.Event, int64, error) {
	where := "WHERE user_id = $1"
	args := []any{userID}

	if filter.EventType != "" {
		args = append(args, filter.EventType)
		where += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		where += fmt.Sprintf(" AND severity = $%d", len(args))
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM security_events " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count security events: %w", err)
	}

	offset := (page - 1) * limit
	pageQuery := fmt.Sprintf(`SELECT id, user_id, event_type, description, ip_address,
		user_agent, COALESCE(location, ''), severity, metadata, created_at
		FROM security_events %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, pageQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("select security events: %w", err)
	}
	defer rows.Close()

	var events []*eventlog.Event
	for rows.Next() {
		var (
			event    eventlog.Event
			severity string
			metadata sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.UserID, &event.EventType,
			&event.Description, &event.IP, &event.UserAgent, &event.Location,
			&severity, &metadata, &event.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan security event: %w", err)
		}
		event.Severity = eventlog.Severity(severity)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate security events: %w", err)
	}

	return events, total, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
