package extract

import (
	"context"
	"fmt"
	"strings"
)

// charWhitelist constrains the first recognition attempt to the
// alphabets the bot actually serves. A constrained run cuts the classic
// confusions (О/0, З/3) but can fail outright on unusual glyphs, so a
// failed page gets one retry without it.
const charWhitelist = "АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ" +
	"абвгдеёжзийклмнопрстуфхцчшщъыьэюя" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	" .,;:!?-—()[]«»\"'№%/+="

// recognizePage runs tesseract over one page image: constrained first,
// then one unconstrained retry. Failure here concerns a single page and
// never aborts the batch.
func (e *Engine) recognizePage(ctx context.Context, imgPath string) (string, error) {
	txt, err := e.tesseract(ctx, imgPath, true)
	if err == nil {
		return txt, nil
	}
	e.logger.Warn("constrained recognition failed, retrying unconstrained",
		"image", imgPath, "error", err)
	txt, err = e.tesseract(ctx, imgPath, false)
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", imgPath, err)
	}
	return txt, nil
}

func (e *Engine) tesseract(ctx context.Context, imgPath string, constrained bool) (string, error) {
	args := []string{imgPath, "stdout", "-l", e.cfg.Languages}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	if constrained {
		args = append(args, "-c", "tessedit_char_whitelist="+charWhitelist)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return strings.TrimRight(string(out), "\n"), nil
}
