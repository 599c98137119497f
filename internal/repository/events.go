package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/pdfscribe/pdfscribe/constants"
)

type EventRepository interface {
	// Append records one named event. The log is append-only and never
	// read back on the serving path.
	Append(ctx context.Context, requesterID int64, name constants.EventName, metadata map[string]any) error
	// CountsByName aggregates the log for reporting.
	CountsByName(ctx context.Context) (map[string]int, error)
}

type eventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEventRepository(db *sql.DB, logger *slog.Logger) EventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventRepository{db: db, logger: logger}
}

func (r *eventRepository) Append(ctx context.Context, requesterID int64, name constants.EventName, metadata map[string]any) error {
	var meta any
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			r.logger.Warn("failed to encode event metadata", "event", name, "error", err)
		} else {
			meta = string(b)
		}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (requester_id, name, metadata) VALUES (?, ?, ?)`,
		requesterID, string(name), meta)
	if err != nil {
		r.logger.Error("failed to append event", "event", name, "error", err)
	}
	return err
}

func (r *eventRepository) CountsByName(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, COUNT(1) FROM events GROUP BY name ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}
