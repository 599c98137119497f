package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client calls the Bot API over HTTPS. It implements the outbound
// surface the orchestrator needs: plain messages, choice keyboards,
// document uploads, callback acks, and file downloads.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

type ClientOption func(*Client)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

func NewClient(token string, timeout time.Duration, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// APIError is a Bot API-level rejection (ok=false with a description).
type APIError struct {
	Method      string
	Status      int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Description)
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("telegram.send_error", "method", method, "error", err)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("telegram.body_close_error", "method", method, "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !api.OK {
		return nil, &APIError{Method: method, Status: resp.StatusCode, Description: api.Description}
	}

	c.logger.Debug("telegram.call",
		"method", method,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return api.Result, nil
}

// SendText delivers a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	return err
}

// SendChoices delivers a message with a single-row inline keyboard.
func (c *Client) SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) error {
	row := make([]inlineKeyboardButton, 0, len(choices))
	for _, ch := range choices {
		row = append(row, inlineKeyboardButton{Text: ch.Label, CallbackData: ch.Data})
	}
	_, err := c.call(ctx, "sendMessage", map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": inlineKeyboardMarkup{InlineKeyboard: [][]inlineKeyboardButton{row}},
	})
	return err
}

// SendFile uploads data as a named document attachment. sendDocument
// requires multipart form encoding, unlike the JSON methods.
func (c *Client) SendFile(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", name)
	if err != nil {
		return fmt.Errorf("create document part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write document part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = c.do(req, "sendDocument")
	return err
}

// AnswerCallback acks a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	_, err := c.call(ctx, "answerCallbackQuery", payload)
	return err
}

// SetWebhook points Bot API deliveries at url. The secret token, when
// set, is echoed back on every delivery and verified by the webhook
// handler.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	payload := map[string]any{"url": url}
	if secretToken != "" {
		payload["secret_token"] = secretToken
	}
	_, err := c.call(ctx, "setWebhook", payload)
	return err
}

type fileInfo struct {
	FilePath string `json:"file_path"`
}

// FetchDocument resolves a file_id to its storage path and downloads
// the payload.
func (c *Client) FetchDocument(ctx context.Context, fileID string) ([]byte, error) {
	result, err := c.call(ctx, "getFile", map[string]any{"file_id": fileID})
	if err != nil {
		return nil, err
	}
	var info fileInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("decode getFile result: %w", err)
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("getFile returned no file_path for %s", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, info.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("telegram.body_close_error", "method", "download", "error", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	c.logger.Debug("telegram.file_fetched", "file_id", fileID, "bytes", len(data))
	return data, nil
}
