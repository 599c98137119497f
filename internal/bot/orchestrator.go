// Package bot wires inbound transport events to the extraction engine,
// session store, feedback ledger and event log, producing outbound
// replies, files and choice prompts. Every inbound event is handled to
// completion before the handler returns; outbound send failures are
// logged and never propagate back into event processing.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pdfscribe/pdfscribe/constants"
	"github.com/pdfscribe/pdfscribe/internal/common"
	"github.com/pdfscribe/pdfscribe/internal/dedup"
	"github.com/pdfscribe/pdfscribe/internal/extract"
	"github.com/pdfscribe/pdfscribe/internal/session"
	"github.com/pdfscribe/pdfscribe/internal/telegram"
	"github.com/pdfscribe/pdfscribe/internal/track"
)

// Sender is the outbound action surface. All sends are fire-and-forget
// from the orchestrator's point of view.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendChoices(ctx context.Context, chatID int64, text string, choices []telegram.Choice) error
	SendFile(ctx context.Context, chatID int64, name string, data []byte, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// FileFetcher downloads an uploaded document's payload by its file id.
type FileFetcher interface {
	FetchDocument(ctx context.Context, fileID string) ([]byte, error)
}

// Extractor is the conversion engine surface the orchestrator drives.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document, pageRange *extract.PageRange) (extract.Result, error)
}

// TextImprover optionally restructures extracted text. Implementations
// must return the input unchanged on any failure.
type TextImprover interface {
	Improve(ctx context.Context, text string) string
}

// FeedbackRecorder persists ratings and comments, one of each per
// (requester, conversion) pair.
type FeedbackRecorder interface {
	RecordRating(ctx context.Context, requesterID int64, conversionID string, rating int) error
	RecordComment(ctx context.Context, requesterID int64, conversionID string, comment string) error
	HasFeedback(ctx context.Context, requesterID int64, conversionID string) (bool, error)
}

type Config struct {
	ChunkPages     int
	ExtractTimeout time.Duration
	DedupCapacity  int
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Sender   Sender
	Files    FileFetcher
	Engine   Extractor
	Improver TextImprover
	Sessions *session.Store
	Feedback FeedbackRecorder
	Events   track.Sink
}

type Orchestrator struct {
	cfg      Config
	sender   Sender
	files    FileFetcher
	engine   Extractor
	improver TextImprover
	sessions *session.Store
	feedback FeedbackRecorder
	events   track.Sink

	// messages and button presses dedup in separate fingerprint spaces:
	// a redelivered message must be dropped, but the same button may be
	// pressed again later for a new logical request.
	messages *dedup.Guard
	presses  *dedup.Guard

	logger *slog.Logger
	now    func() time.Time
}

func New(cfg Config, d Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkPages <= 0 {
		cfg.ChunkPages = 10
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 3 * time.Minute
	}
	if d.Events == nil {
		d.Events = track.Nop{}
	}
	if d.Improver == nil {
		d.Improver = passthroughImprover{}
	}
	return &Orchestrator{
		cfg:      cfg,
		sender:   d.Sender,
		files:    d.Files,
		engine:   d.Engine,
		improver: d.Improver,
		sessions: d.Sessions,
		feedback: d.Feedback,
		events:   d.Events,
		messages: dedup.NewGuard(cfg.DedupCapacity),
		presses:  dedup.NewGuard(cfg.DedupCapacity),
		logger:   logger,
		now:      time.Now,
	}
}

type passthroughImprover struct{}

func (passthroughImprover) Improve(_ context.Context, text string) string { return text }

// User-facing copy. The bot speaks Russian, like its audience.
const (
	msgStart         = "Пришлите PDF-файл, и я верну его текст."
	msgCancelled     = "Хорошо, отменил. Отправьте /start, когда будете готовы."
	msgGuidanceIdle  = "Отправьте /start, затем пришлите PDF-файл."
	msgDocUnexpected = "Сначала отправьте /start, затем пришлите PDF-файл."
	msgUnsupported   = "Это не похоже на PDF. Пришлите PDF-файл."
	msgNoText        = "Не удалось извлечь текст из документа."
	msgEngineDown    = "Распознавание сейчас недоступно, попробуйте позже."
	msgFailure       = "Не получилось обработать документ, попробуйте ещё раз."
	msgFetchFailed   = "Не удалось скачать файл, пришлите его ещё раз."
	msgScanExpired   = "Запрос устарел, пришлите документ ещё раз."
	msgRatingPrompt  = "Оцените результат от 1 до 5."
	msgRatingThanks  = "Спасибо за оценку!"
	msgAlreadyRated  = "Оценка уже записана."
	msgCommentPrompt = "Напишите ваш комментарий одним сообщением."
	msgCommentThanks = "Спасибо за отзыв!"
)

// Callback data values. ConversionIDs never contain ':', so prefixed
// values split cleanly.
const (
	cbScanFirst     = "scan:first"
	cbScanSplit     = "scan:split"
	cbRatePrefix    = "rate:"    // rate:<conversionID>:<1..5>
	cbCommentPrefix = "comment:" // comment:<conversionID>
	cbSkipFeedback  = "feedback:skip"
)

// HandleUpdate processes one inbound event end to end. It implements
// telegram.UpdateHandler.
func (o *Orchestrator) HandleUpdate(ctx context.Context, upd telegram.Update) {
	switch {
	case upd.Message != nil:
		fp := dedup.MessageFingerprint(upd.UpdateID, upd.Message.Date)
		if !o.messages.ShouldProcess(fp) {
			o.logger.Info("duplicate message dropped", "update_id", upd.UpdateID)
			return
		}
		o.handleMessage(ctx, upd.UpdateID, upd.Message)
	case upd.CallbackQuery != nil:
		fp := dedup.CallbackFingerprint(upd.CallbackQuery.ID)
		if !o.presses.ShouldProcess(fp) {
			o.logger.Info("duplicate callback dropped", "callback_id", upd.CallbackQuery.ID)
			return
		}
		o.handleCallback(ctx, upd.UpdateID, upd.CallbackQuery)
	default:
		o.logger.Debug("update without payload ignored", "update_id", upd.UpdateID)
	}
}

func (o *Orchestrator) handleMessage(ctx context.Context, eventID int64, msg *telegram.Message) {
	chat := msg.Chat.ID
	requester := chat
	if msg.From != nil {
		requester = msg.From.ID
	}

	if msg.Document != nil {
		o.handleDocument(ctx, eventID, chat, requester, msg.Document)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch text {
	// Commands act even while a comment is awaited: /start is a new
	// upload intent and resets the session.
	case "/start":
		o.sessions.SetAwaitingFile(requester)
		o.reply(ctx, chat, msgStart)
		return
	case "/cancel":
		o.sessions.Reset(requester)
		o.reply(ctx, chat, msgCancelled)
		return
	}

	if conversionID, ok := o.sessions.TakeComment(requester); ok {
		if err := o.feedback.RecordComment(ctx, requester, conversionID, text); err != nil {
			o.logger.Error("comment not recorded",
				"requester_id", requester, "conversion_id", conversionID, "error", err)
			o.reply(ctx, chat, msgFailure)
			return
		}
		o.events.Record(ctx, requester, constants.EventCommentRecorded,
			map[string]any{"conversion_id": conversionID})
		o.reply(ctx, chat, msgCommentThanks)
		return
	}

	// Unrecognized text in any state gets guidance, never an error.
	o.reply(ctx, chat, msgGuidanceIdle)
}

func (o *Orchestrator) handleDocument(ctx context.Context, eventID, chat, requester int64, doc *telegram.Document) {
	if o.sessions.State(requester) != session.StateAwaitingFile {
		o.reply(ctx, chat, msgDocUnexpected)
		return
	}

	data, err := o.files.FetchDocument(ctx, doc.FileID)
	if err != nil {
		o.logger.Error("document fetch failed", "file_id", doc.FileID, "error", err)
		o.reply(ctx, chat, msgFetchFailed)
		return
	}

	payload := extract.Document{Data: data, MediaType: doc.MimeType, Name: doc.FileName}

	ectx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()
	res, err := o.engine.Extract(ectx, payload, nil)

	var large *extract.LargeScanError
	switch {
	case err == nil:
		o.deliver(ctx, chat, requester, eventID, doc.FileName, res, true)
		o.sessions.Reset(requester)

	case errors.As(err, &large):
		// Park the scan and ask; no page work has started yet.
		o.sessions.ParkScan(requester, payload, large.TotalPages)
		o.events.Record(ctx, requester, constants.EventLargeScanPrompted,
			map[string]any{"total_pages": large.TotalPages})
		prompt := fmt.Sprintf("В документе %d страниц. Распознать первые %d или разбить на части?",
			large.TotalPages, o.cfg.ChunkPages)
		o.sendChoices(ctx, chat, prompt, []telegram.Choice{
			{Label: fmt.Sprintf("Первые %d", o.cfg.ChunkPages), Data: cbScanFirst},
			{Label: "Разбить на части", Data: cbScanSplit},
		})

	case errors.Is(err, common.ErrUnsupportedInput):
		// Rejected with no side effects; the upload intent stays armed
		// so the requester can send the right file.
		o.events.Record(ctx, requester, constants.EventUploadRejected,
			map[string]any{"media_type": doc.MimeType, "name": doc.FileName})
		o.reply(ctx, chat, msgUnsupported)

	default:
		o.reportFailure(ctx, chat, requester, doc.FileName, err)
		o.sessions.Reset(requester)
	}
}

func (o *Orchestrator) handleCallback(ctx context.Context, eventID int64, cb *telegram.CallbackQuery) {
	requester := cb.From.ID
	chat := requester
	if cb.Message != nil {
		chat = cb.Message.Chat.ID
	}

	switch {
	case cb.Data == cbScanFirst:
		o.ack(ctx, cb.ID, "")
		scan, ok := o.sessions.TakeScan(requester)
		if !ok {
			o.reply(ctx, chat, msgScanExpired)
			return
		}
		o.events.Record(ctx, requester, constants.EventLargeScanFirstChunk,
			map[string]any{"total_pages": scan.TotalPages})
		r := extract.PageRange{First: 1, Last: o.cfg.ChunkPages}
		o.extractRange(ctx, chat, requester, eventID, scan.Doc, r, true)
		o.sessions.Reset(requester)

	case cb.Data == cbScanSplit:
		o.ack(ctx, cb.ID, "")
		scan, ok := o.sessions.TakeScan(requester)
		if !ok {
			o.reply(ctx, chat, msgScanExpired)
			return
		}
		o.events.Record(ctx, requester, constants.EventLargeScanSplit,
			map[string]any{"total_pages": scan.TotalPages})
		ranges := extract.ChunkRanges(scan.TotalPages, o.cfg.ChunkPages)
		// Chunks are sequential and delivered independently: a failed
		// chunk reports and the rest still go out. The rating prompt
		// waits for the last chunk.
		for i, r := range ranges {
			o.extractRange(ctx, chat, requester, eventID, scan.Doc, r, i == len(ranges)-1)
		}
		o.sessions.Reset(requester)

	case strings.HasPrefix(cb.Data, cbRatePrefix):
		o.handleRating(ctx, cb, chat, requester)

	case strings.HasPrefix(cb.Data, cbCommentPrefix):
		conversionID := strings.TrimPrefix(cb.Data, cbCommentPrefix)
		o.ack(ctx, cb.ID, "")
		o.sessions.SetAwaitingComment(requester, conversionID)
		o.reply(ctx, chat, msgCommentPrompt)

	case cb.Data == cbSkipFeedback:
		o.ack(ctx, cb.ID, msgCommentThanks)

	default:
		o.logger.Warn("unknown callback data", "data", cb.Data)
		o.ack(ctx, cb.ID, "")
	}
}

func (o *Orchestrator) handleRating(ctx context.Context, cb *telegram.CallbackQuery, chat, requester int64) {
	parts := strings.SplitN(strings.TrimPrefix(cb.Data, cbRatePrefix), ":", 2)
	if len(parts) != 2 {
		o.ack(ctx, cb.ID, "")
		return
	}
	conversionID := parts[0]
	rating, err := strconv.Atoi(parts[1])
	if err != nil {
		o.ack(ctx, cb.ID, "")
		return
	}

	if has, err := o.feedback.HasFeedback(ctx, requester, conversionID); err == nil && has {
		o.ack(ctx, cb.ID, msgAlreadyRated)
		return
	}
	if err := o.feedback.RecordRating(ctx, requester, conversionID, rating); err != nil {
		o.logger.Error("rating not recorded",
			"requester_id", requester, "conversion_id", conversionID, "error", err)
		o.ack(ctx, cb.ID, "")
		return
	}
	o.events.Record(ctx, requester, constants.EventRatingRecorded,
		map[string]any{"conversion_id": conversionID, "rating": rating})
	o.ack(ctx, cb.ID, msgRatingThanks)
	o.sendChoices(ctx, chat, "Хотите оставить комментарий?", []telegram.Choice{
		{Label: "Комментарий", Data: cbCommentPrefix + conversionID},
		{Label: "Пропустить", Data: cbSkipFeedback},
	})
}

// extractRange runs one bounded extraction over a parked scan and
// delivers the outcome. promptFeedback gates the rating prompt so a
// split conversion asks only once.
func (o *Orchestrator) extractRange(ctx context.Context, chat, requester, eventID int64, doc extract.Document, r extract.PageRange, promptFeedback bool) {
	ectx, cancel := context.WithTimeout(ctx, o.cfg.ExtractTimeout)
	defer cancel()
	res, err := o.engine.Extract(ectx, doc, &r)
	if err != nil {
		o.reportFailure(ctx, chat, requester, doc.Name, err)
		return
	}
	o.deliver(ctx, chat, requester, eventID, doc.Name, res, promptFeedback)
}

// deliver sends the result as a .txt document and, when asked, follows
// up with the rating prompt.
func (o *Orchestrator) deliver(ctx context.Context, chat, requester, eventID int64, docName string, res extract.Result, promptFeedback bool) {
	text := o.improver.Improve(ctx, res.Text)
	conversionID := fmt.Sprintf("%d-%d", eventID, o.now().Unix())

	event := constants.EventConversionDirect
	if res.Provenance == extract.ProvenanceRecognized {
		event = constants.EventConversionRecognized
	}
	o.events.Record(ctx, requester, event, map[string]any{
		"conversion_id": conversionID,
		"total_pages":   res.TotalPages,
		"range":         res.Range.String(),
		"failed_pages":  len(res.FailedPages),
		"duration_ms":   res.Duration.Milliseconds(),
	})

	caption := ""
	if res.Range.Valid() {
		caption = fmt.Sprintf("Страницы %d–%d", res.Range.First, res.Range.Last)
	}
	if err := o.sender.SendFile(ctx, chat, txtName(docName, res.Range), []byte(text), caption); err != nil {
		o.logger.Error("result delivery failed", "chat_id", chat, "error", err)
	}

	if promptFeedback {
		o.promptRating(ctx, chat, requester, conversionID)
	}
}

func (o *Orchestrator) promptRating(ctx context.Context, chat, requester int64, conversionID string) {
	if has, err := o.feedback.HasFeedback(ctx, requester, conversionID); err == nil && has {
		return
	}
	choices := make([]telegram.Choice, 0, 5)
	for n := 1; n <= 5; n++ {
		choices = append(choices, telegram.Choice{
			Label: strconv.Itoa(n),
			Data:  fmt.Sprintf("%s%s:%d", cbRatePrefix, conversionID, n),
		})
	}
	o.sendChoices(ctx, chat, msgRatingPrompt, choices)
}

func (o *Orchestrator) reportFailure(ctx context.Context, chat, requester int64, docName string, err error) {
	o.events.Record(ctx, requester, constants.EventConversionFailed,
		map[string]any{"name": docName, "error": err.Error()})
	switch {
	case errors.Is(err, common.ErrNoExtractableText):
		o.reply(ctx, chat, msgNoText)
	case errors.Is(err, common.ErrRecognitionUnavailable):
		o.logger.Error("recognition unavailable", "doc", docName, "error", err)
		o.reply(ctx, chat, msgEngineDown)
	default:
		o.logger.Error("conversion failed", "doc", docName, "error", err)
		o.reply(ctx, chat, msgFailure)
	}
}

// Outbound helpers: transport errors are logged, never raised, so the
// inbound event still completes as handled.

func (o *Orchestrator) reply(ctx context.Context, chat int64, text string) {
	if err := o.sender.SendText(ctx, chat, text); err != nil {
		o.logger.Error("reply failed", "chat_id", chat, "error", err)
	}
}

func (o *Orchestrator) sendChoices(ctx context.Context, chat int64, text string, choices []telegram.Choice) {
	if err := o.sender.SendChoices(ctx, chat, text, choices); err != nil {
		o.logger.Error("choice prompt failed", "chat_id", chat, "error", err)
	}
}

func (o *Orchestrator) ack(ctx context.Context, callbackID, text string) {
	if err := o.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		o.logger.Warn("callback ack failed", "callback_id", callbackID, "error", err)
	}
}

// txtName derives the reply file name: the upload's base name with a
// .txt extension, tagged with the page window for partial results.
func txtName(docName string, r extract.PageRange) string {
	base := strings.TrimSuffix(docName, ".pdf")
	base = strings.TrimSuffix(base, ".PDF")
	if base == "" {
		base = "output"
	}
	if r.Valid() {
		return fmt.Sprintf("%s_p%d-%d.txt", base, r.First, r.Last)
	}
	return base + ".txt"
}
