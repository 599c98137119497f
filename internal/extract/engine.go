// Package extract decides how a PDF gives up its text: the embedded
// text layer when there is one, page-by-page recognition when there is
// not. Recognition is chunked by page range, parallelized across a
// bounded worker set and reassembled in page order.
package extract

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdfscribe/pdfscribe/constants"
	"github.com/pdfscribe/pdfscribe/internal/common"
	"github.com/pdfscribe/pdfscribe/internal/preprocess"
	"github.com/pdfscribe/pdfscribe/internal/textnorm"
)

// Document is an uploaded payload held only for the duration of one
// conversion.
type Document struct {
	Data      []byte
	MediaType string
	Name      string
}

// Provenance tags how a result's text was obtained.
type Provenance string

const (
	ProvenanceDirect     Provenance = "direct"
	ProvenanceRecognized Provenance = "recognized"
)

// Result is a completed extraction. Text is always normalized and
// non-blank; blank outcomes surface as errors, never as empty success.
type Result struct {
	Text       string
	Provenance Provenance
	TotalPages int       // page count of the whole document, when known
	Range      PageRange // pages actually recognized (zero for direct)
	// FailedPages lists 1-indexed pages whose recognition failed both
	// attempts. Their slots in Text are empty; this degrades the result
	// but does not fail it.
	FailedPages []int
	Duration    time.Duration
}

// LargeScanError reports that recognition is required but the document
// exceeds the default chunk, so the caller must choose how to proceed
// before any page work starts.
type LargeScanError struct {
	TotalPages int
}

func (e *LargeScanError) Error() string {
	return fmt.Sprintf("scanned document has %d pages, over the default chunk", e.TotalPages)
}

// Config mirrors the OCR section of the application config.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Languages   string // tesseract language set, default "rus+eng"
	DPI         int    // rasterization DPI, default 300
	ChunkPages  int    // default page window for scanned documents
	Workers     int    // concurrent page recognitions per call
	MaxPageDim  int    // downscale cap on a page image's largest side
	TessdataDir string
}

type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "rus+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.ChunkPages <= 0 {
		cfg.ChunkPages = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxPageDim <= 0 {
		cfg.MaxPageDim = 2800
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract converts one document to text. A nil pageRange means "decide
// for me": direct extraction over the whole document, or the first
// ChunkPages pages when recognition is needed. A document that needs
// recognition and exceeds ChunkPages with no range supplied returns
// *LargeScanError so the caller can ask the requester how to proceed.
func (e *Engine) Extract(ctx context.Context, doc Document, pageRange *PageRange) (Result, error) {
	start := time.Now()

	if len(doc.Data) == 0 {
		return Result{}, fmt.Errorf("%w: empty payload", common.ErrUnsupportedInput)
	}
	if !constants.IsPDFMediaType(doc.MediaType, doc.Name) {
		return Result{}, fmt.Errorf("%w: media type %q", common.ErrUnsupportedInput, doc.MediaType)
	}
	if !constants.LooksLikePDF(doc.Data) {
		return Result{}, fmt.Errorf("%w: payload is not a PDF", common.ErrUnsupportedInput)
	}

	path, cleanup, err := e.spill(doc)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	// Direct extraction is cheap and ignores page ranges: the whole
	// text layer or nothing.
	raw, totalPages, err := e.pdfToText(ctx, path)
	if err != nil {
		e.logger.Warn("direct extraction failed, page count unknown", "doc", doc.Name, "error", err)
		totalPages = 0
	}
	if text := textnorm.Normalize(raw); text != "" {
		e.logger.Info("extracted embedded text layer",
			"doc", doc.Name, "pages", totalPages, "chars", len(text))
		return Result{
			Text:       text,
			Provenance: ProvenanceDirect,
			TotalPages: totalPages,
			Duration:   time.Since(start),
		}, nil
	}

	// Recognition required from here on.
	if pageRange == nil && totalPages > e.cfg.ChunkPages {
		return Result{TotalPages: totalPages}, &LargeScanError{TotalPages: totalPages}
	}

	r := e.resolveRange(pageRange, totalPages)
	res, err := e.recognizeRange(ctx, doc.Name, path, r)
	if err != nil {
		return Result{}, err
	}
	res.TotalPages = totalPages
	res.Duration = time.Since(start)
	return res, nil
}

// spill writes the payload to a temp file for the external tools.
func (e *Engine) spill(doc Document) (string, func(), error) {
	f, err := os.CreateTemp("", "pdfscribe-*.pdf")
	if err != nil {
		return "", nil, fmt.Errorf("spill document: %w", err)
	}
	path := f.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove temp document", "path", path, "error", err)
		}
	}
	if _, err := f.Write(doc.Data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("spill document: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("spill document: %w", err)
	}
	return path, cleanup, nil
}

func (e *Engine) resolveRange(pageRange *PageRange, totalPages int) PageRange {
	if pageRange != nil {
		r := *pageRange
		if !r.Valid() {
			r = PageRange{First: 1, Last: e.cfg.ChunkPages}
		}
		if totalPages > 0 {
			r = r.Clamp(totalPages)
		}
		return r
	}
	last := e.cfg.ChunkPages
	if totalPages > 0 && totalPages < last {
		last = totalPages
	}
	return PageRange{First: 1, Last: last}
}

// recognizeRange rasterizes one page window and recognizes the pages
// concurrently, bounded by cfg.Workers. Texts are reassembled in page
// order regardless of which worker finished first.
func (e *Engine) recognizeRange(ctx context.Context, docName, path string, r PageRange) (Result, error) {
	tmpDir, err := os.MkdirTemp("", "pdfscribe-pages-*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", common.ErrRecognitionUnavailable, err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove page dir", "dir", tmpDir, "error", err)
		}
	}()

	images, err := e.rasterize(ctx, path, tmpDir, r)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", common.ErrRecognitionUnavailable, err)
	}

	texts := make([]string, len(images))
	failed := make([]bool, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failed[i] = true
				return nil
			}
			txt, err := e.recognizePage(gctx, e.prepare(img))
			if err != nil {
				// one page degrades the output, it does not abort the batch
				e.logger.Warn("page recognition failed",
					"doc", docName, "page", r.First+i, "error", err)
				failed[i] = true
				return nil
			}
			texts[i] = txt
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var failedPages []int
	for i, f := range failed {
		if f {
			failedPages = append(failedPages, r.First+i)
		}
	}

	text := textnorm.Normalize(joinPages(texts))
	if text == "" {
		return Result{}, fmt.Errorf("%w: pages %s", common.ErrNoExtractableText, r)
	}
	e.logger.Info("recognized page range",
		"doc", docName, "range", r.String(), "failed_pages", len(failedPages), "chars", len(text))
	return Result{
		Text:        text,
		Provenance:  ProvenanceRecognized,
		Range:       r,
		FailedPages: failedPages,
	}, nil
}

// prepare conditions one page image for recognition and returns the
// path tesseract should read. Conditioning is best effort: any failure
// falls back to the rasterized original.
func (e *Engine) prepare(imgPath string) string {
	f, err := os.Open(imgPath)
	if err != nil {
		return imgPath
	}
	src, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return imgPath
	}

	img := preprocess.DownscaleIfNeeded(src, e.cfg.MaxPageDim)
	img = preprocess.Preprocess(img)

	prepPath := imgPath + ".prep.png"
	out, err := os.Create(prepPath)
	if err != nil {
		return imgPath
	}
	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		return imgPath
	}
	if err := out.Close(); err != nil {
		return imgPath
	}
	return prepPath
}

// joinPages separates page texts with paragraph breaks so the
// normalizer keeps the page boundaries readable. Failed pages
// contribute nothing.
func joinPages(texts []string) string {
	var joined string
	for _, t := range texts {
		if t == "" {
			continue
		}
		if joined != "" {
			joined += "\n\n"
		}
		joined += t
	}
	return joined
}
