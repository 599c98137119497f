// Package track is the one-way metric/event port. Events feed later
// reporting; nothing on the serving path reads them back, so recording
// never fails the caller.
package track

import (
	"context"
	"log/slog"

	"github.com/pdfscribe/pdfscribe/constants"
	"github.com/pdfscribe/pdfscribe/internal/repository"
)

type Sink interface {
	Record(ctx context.Context, requesterID int64, name constants.EventName, metadata map[string]any)
}

type dbSink struct {
	repo   repository.EventRepository
	logger *slog.Logger
}

func NewSink(repo repository.EventRepository, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &dbSink{repo: repo, logger: logger}
}

func (s *dbSink) Record(ctx context.Context, requesterID int64, name constants.EventName, metadata map[string]any) {
	if err := s.repo.Append(ctx, requesterID, name, metadata); err != nil {
		// best effort: the event log never blocks event handling
		s.logger.Warn("event not recorded", "event", name, "error", err)
	}
}

// Nop discards everything. Used in tests and when the store is disabled.
type Nop struct{}

func (Nop) Record(context.Context, int64, constants.EventName, map[string]any) {}
