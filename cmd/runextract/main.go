// runextract converts one local PDF to text without the bot around it.
// Useful for checking the external tools and tuning OCR settings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfscribe/pdfscribe/internal/common"
	"github.com/pdfscribe/pdfscribe/internal/extract"
)

func main() {
	var (
		first   = flag.Int("first", 0, "first page to recognize (0 = decide automatically)")
		last    = flag.Int("last", 0, "last page to recognize")
		timeout = flag.Duration("timeout", 3*time.Minute, "extraction budget")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runextract [flags] <file.pdf>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	engine := extract.NewEngine(extract.Config{
		Pdftotext:   cfg.OCR.Pdftotext,
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Languages:   cfg.OCR.Languages,
		DPI:         cfg.OCR.DPI,
		ChunkPages:  cfg.OCR.ChunkPages,
		Workers:     cfg.OCR.Workers,
		TessdataDir: cfg.OCR.TessdataDir,
	}, logger)

	var pageRange *extract.PageRange
	if *first > 0 && *last >= *first {
		pageRange = &extract.PageRange{First: *first, Last: *last}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	doc := extract.Document{
		Data:      data,
		MediaType: "application/pdf",
		Name:      filepath.Base(path),
	}
	res, err := engine.Extract(ctx, doc, pageRange)
	if err != nil {
		var large *extract.LargeScanError
		if errors.As(err, &large) {
			logger.Error("document needs a page range",
				"total_pages", large.TotalPages, "hint", "pass -first and -last")
			os.Exit(1)
		}
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	logger.Info("extraction done",
		"provenance", res.Provenance,
		"total_pages", res.TotalPages,
		"range", res.Range.String(),
		"failed_pages", res.FailedPages,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	fmt.Println(res.Text)
}
