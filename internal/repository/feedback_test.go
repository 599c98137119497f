package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pdfscribe/pdfscribe/constants"
)

func openTestDB(t *testing.T) *FeedbackEventRepos {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: ":memory:", DialTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &FeedbackEventRepos{
		Feedback: NewFeedbackRepository(db, nil),
		Events:   NewEventRepository(db, nil),
	}
}

// FeedbackEventRepos bundles the repositories tests need.
type FeedbackEventRepos struct {
	Feedback FeedbackRepository
	Events   EventRepository
}

func TestFeedbackRatingThenComment(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	if err := repos.Feedback.UpsertRating(ctx, 10, "conv-1", 4); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if err := repos.Feedback.UpsertComment(ctx, 10, "conv-1", "good output"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	rec, ok, err := repos.Feedback.Get(ctx, 10, "conv-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.Rating == nil || *rec.Rating != 4 {
		t.Errorf("rating = %v, want 4", rec.Rating)
	}
	if rec.Comment == nil || *rec.Comment != "good output" {
		t.Errorf("comment = %v, want filled", rec.Comment)
	}

	// one record, not two
	all, err := repos.Feedback.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("records = %d, want 1", len(all))
	}
}

func TestFeedbackFirstRatingWins(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	if err := repos.Feedback.UpsertRating(ctx, 10, "conv-1", 5); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if err := repos.Feedback.UpsertRating(ctx, 10, "conv-1", 1); err != nil {
		t.Fatalf("second rating: %v", err)
	}

	rec, _, err := repos.Feedback.Get(ctx, 10, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Rating == nil || *rec.Rating != 5 {
		t.Errorf("rating = %v, want the first write 5", rec.Rating)
	}
}

func TestFeedbackCommentDoesNotClobberRating(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	_ = repos.Feedback.UpsertComment(ctx, 10, "conv-1", "first comment")
	_ = repos.Feedback.UpsertComment(ctx, 10, "conv-1", "second comment")
	_ = repos.Feedback.UpsertRating(ctx, 10, "conv-1", 3)

	rec, _, err := repos.Feedback.Get(ctx, 10, "conv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Comment == nil || *rec.Comment != "first comment" {
		t.Errorf("comment = %v, want the first write", rec.Comment)
	}
	if rec.Rating == nil || *rec.Rating != 3 {
		t.Errorf("rating = %v, want 3 (late fill of missing field)", rec.Rating)
	}
}

func TestHasRatingGatesReprompt(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	has, err := repos.Feedback.HasRating(ctx, 10, "conv-1")
	if err != nil || has {
		t.Fatalf("HasRating before = (%v, %v), want (false, nil)", has, err)
	}

	// a comment alone does not count as a rating
	_ = repos.Feedback.UpsertComment(ctx, 10, "conv-1", "note")
	has, _ = repos.Feedback.HasRating(ctx, 10, "conv-1")
	if has {
		t.Error("comment alone must not gate the rating prompt")
	}

	_ = repos.Feedback.UpsertRating(ctx, 10, "conv-1", 2)
	has, _ = repos.Feedback.HasRating(ctx, 10, "conv-1")
	if !has {
		t.Error("HasRating after rating must be true")
	}
}

func TestFeedbackRejectsOutOfRangeRating(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()
	for _, bad := range []int{0, 6, -1} {
		if err := repos.Feedback.UpsertRating(ctx, 10, "conv-1", bad); err == nil {
			t.Errorf("rating %d accepted, want error", bad)
		}
	}
}

func TestFeedbackPairsAreIndependent(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	_ = repos.Feedback.UpsertRating(ctx, 10, "conv-1", 5)
	_ = repos.Feedback.UpsertRating(ctx, 10, "conv-2", 1)
	_ = repos.Feedback.UpsertRating(ctx, 11, "conv-1", 3)

	all, err := repos.Feedback.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("records = %d, want 3", len(all))
	}
}

func TestEventLogCounts(t *testing.T) {
	repos := openTestDB(t)
	ctx := context.Background()

	_ = repos.Events.Append(ctx, 10, constants.EventConversionDirect, nil)
	_ = repos.Events.Append(ctx, 11, constants.EventConversionDirect, map[string]any{"pages": 3})
	_ = repos.Events.Append(ctx, 10, constants.EventConversionFailed, nil)

	counts, err := repos.Events.CountsByName(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[string(constants.EventConversionDirect)] != 2 {
		t.Errorf("direct count = %d, want 2", counts[string(constants.EventConversionDirect)])
	}
	if counts[string(constants.EventConversionFailed)] != 1 {
		t.Errorf("failed count = %d, want 1", counts[string(constants.EventConversionFailed)])
	}
}
