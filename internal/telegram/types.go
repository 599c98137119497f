// Package telegram is the wire-level adapter for the Bot API: webhook
// update decoding inbound, a small HTTP client outbound. Nothing here
// decides behavior; it shuttles events to the orchestrator and actions
// back out.
package telegram

// Update is one inbound event delivery. Exactly one of the payload
// fields is set. UpdateID plus the message date form the stable
// identity redelivery dedup keys on.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int64     `json:"message_id"`
	From      *User     `json:"from"`
	Chat      Chat      `json:"chat"`
	Date      int64     `json:"date"` // unix seconds
	Text      string    `json:"text"`
	Document  *Document `json:"document"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// Document is a file attachment reference; the payload itself is
// fetched separately via the file API.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// CallbackQuery is a button press. Its own ID keys deduplication; Data
// carries the choice the button encodes.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Choice is one inline keyboard button: a visible label and the data
// echoed back when pressed.
type Choice struct {
	Label string
	Data  string
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type inlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}
