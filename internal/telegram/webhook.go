package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler consumes one decoded update. The webhook acks the
// delivery regardless of what the handler does with it; redelivery is
// handled by the dedup layer, not by HTTP status codes.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd Update)
}

// WebhookHandler decodes Bot API webhook posts and forwards them.
type WebhookHandler struct {
	secretToken string
	handler     UpdateHandler
	logger      *slog.Logger
}

func NewWebhookHandler(secretToken string, handler UpdateHandler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{secretToken: secretToken, handler: handler, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secretToken != "" && r.Header.Get(secretTokenHeader) != h.secretToken {
		h.logger.Warn("webhook.rejected", "reason", "bad secret token", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var upd Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.logger.Warn("webhook.rejected", "reason", "undecodable body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.logger.Debug("webhook.update", "update_id", upd.UpdateID,
		"has_message", upd.Message != nil, "has_callback", upd.CallbackQuery != nil)

	h.handler.HandleUpdate(r.Context(), upd)
	w.WriteHeader(http.StatusOK)
}
