package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// pdfToText runs direct text-layer extraction over the whole document.
// The page count comes for free: pdftotext separates pages with \f.
func (e *Engine) pdfToText(ctx context.Context, path string) (text string, pages int, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, err
	}
	text = string(out)
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil
}

// rasterize renders the pages of one range to PNG files under dir and
// returns their paths in ascending page order.
func (e *Engine) rasterize(ctx context.Context, path, dir string, r PageRange) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 300 -png -f <first> -l <last> <in.pdf> <dir/page>
	_, _, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI),
		"-png",
		"-f", fmt.Sprintf("%d", r.First),
		"-l", fmt.Sprintf("%d", r.Last),
		path, prefix)
	if err != nil {
		return nil, err
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...); pdftoppm
	// zero-pads the numbers so a lexicographic sort is page order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images for %s", r)
	}
	if n := r.Pages(); len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}
