// Package improve asks an LLM to restructure extracted text into
// readable blocks. Strictly best effort: any failure — missing key,
// transport error, malformed response — hands the caller's text back
// unchanged.
package improve

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	URL     string
	Model   string
	APIKey  string // empty disables improvement entirely
	Timeout time.Duration
}

type Improver struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Improver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Improver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether an API key is configured.
func (i *Improver) Enabled() bool { return i.cfg.APIKey != "" }

const promptPreamble = `Разбей следующий текст на логически завершённые блоки.
Сохрани исходный смысл, но сделай структуру читаемой.
Верни только текст, без пояснений.

Текст:
`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Improve returns a restructured version of text, or text itself when
// improvement is disabled or anything goes wrong.
func (i *Improver) Improve(ctx context.Context, text string) string {
	if !i.Enabled() || strings.TrimSpace(text) == "" {
		return text
	}

	body := chatRequest{
		Model:    i.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: promptPreamble + text}},
	}
	headers := map[string]string{"Authorization": "Bearer " + i.cfg.APIKey}

	raw, _, err := sendJSON(ctx, i.client, i.cfg.URL, body, headers, i.logger)
	if err != nil {
		i.logger.Warn("improvement call failed, keeping raw text", "error", err)
		return text
	}
	if err := validateChatResponse(raw); err != nil {
		i.logger.Warn("improvement response rejected, keeping raw text", "error", err)
		return text
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		i.logger.Warn("improvement response undecodable, keeping raw text", "error", err)
		return text
	}
	improved := strings.TrimSpace(resp.Choices[0].Message.Content)
	if improved == "" {
		return text
	}
	return improved
}
