// Package export produces the usage report workbook: aggregated event
// counts on one sheet, collected feedback on another.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pdfscribe/pdfscribe/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes.
type Service struct {
	events   repository.EventRepository
	feedback repository.FeedbackRepository
	logger   *slog.Logger
}

func NewService(events repository.EventRepository, feedback repository.FeedbackRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{events: events, feedback: feedback, logger: logger}
}

const (
	eventsSheet   = "Events"
	feedbackSheet = "Feedback"
)

// StatsXLSX returns a workbook with one row per event name and one row
// per feedback record.
func (s *Service) StatsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	counts, err := s.events.CountsByName(ctx)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}
	records, err := s.feedback.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}

	f := excelize.NewFile()

	if err := s.writeEvents(f, counts); err != nil {
		return nil, err
	}
	if err := s.writeFeedback(f, records); err != nil {
		return nil, err
	}

	// drop the default sheet excelize creates
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}
	if idx, _ := f.GetSheetIndex(eventsSheet); idx != -1 {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	s.logger.Info("stats workbook built",
		"event_names", len(counts),
		"feedback_rows", len(records),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeEvents(f *excelize.File, counts map[string]int) error {
	if _, err := f.NewSheet(eventsSheet); err != nil {
		return err
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(eventsSheet, cell, v)
	}
	write(1, 1, "Event")
	write(2, 1, "Count")

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		write(1, i+2, name)
		write(2, i+2, counts[name])
	}
	return nil
}

func (s *Service) writeFeedback(f *excelize.File, records []repository.FeedbackRecord) error {
	if _, err := f.NewSheet(feedbackSheet); err != nil {
		return err
	}

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(feedbackSheet, cell, v)
	}
	headers := []string{"Requester", "Conversion", "Rating", "Comment"}
	for i, h := range headers {
		write(i+1, 1, h)
	}

	for i, rec := range records {
		row := i + 2
		write(1, row, rec.RequesterID)
		write(2, row, rec.ConversionID)
		if rec.Rating != nil {
			write(3, row, *rec.Rating)
		}
		if rec.Comment != nil {
			write(4, row, *rec.Comment)
		}
	}
	return nil
}
