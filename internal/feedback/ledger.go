// Package feedback records at most one rating and one comment per
// (requester, conversion) pair.
package feedback

import (
	"context"
	"log/slog"

	"github.com/pdfscribe/pdfscribe/internal/repository"
)

// Ledger is a thin service over the feedback repository. Both record
// operations are idempotent upserts: existing non-null fields are never
// overwritten, later writes only fill what is missing.
type Ledger struct {
	repo   repository.FeedbackRepository
	logger *slog.Logger
}

func NewLedger(repo repository.FeedbackRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, logger: logger}
}

func (l *Ledger) RecordRating(ctx context.Context, requesterID int64, conversionID string, rating int) error {
	if err := l.repo.UpsertRating(ctx, requesterID, conversionID, rating); err != nil {
		return err
	}
	l.logger.Info("rating recorded",
		"requester_id", requesterID, "conversion_id", conversionID, "rating", rating)
	return nil
}

func (l *Ledger) RecordComment(ctx context.Context, requesterID int64, conversionID string, comment string) error {
	if err := l.repo.UpsertComment(ctx, requesterID, conversionID, comment); err != nil {
		return err
	}
	l.logger.Info("comment recorded",
		"requester_id", requesterID, "conversion_id", conversionID, "chars", len(comment))
	return nil
}

// HasFeedback reports whether a rating already exists for the pair, so
// the orchestrator does not prompt twice.
func (l *Ledger) HasFeedback(ctx context.Context, requesterID int64, conversionID string) (bool, error) {
	return l.repo.HasRating(ctx, requesterID, conversionID)
}
