package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pdfscribe/pdfscribe/constants"
	"github.com/pdfscribe/pdfscribe/internal/common"
	"github.com/pdfscribe/pdfscribe/internal/extract"
	"github.com/pdfscribe/pdfscribe/internal/session"
	"github.com/pdfscribe/pdfscribe/internal/telegram"
)

type action struct {
	kind    string // "text", "choices", "file", "ack"
	chat    int64
	text    string
	name    string
	choices []telegram.Choice
}

type fakeSender struct {
	actions []action
}

func (s *fakeSender) SendText(_ context.Context, chat int64, text string) error {
	s.actions = append(s.actions, action{kind: "text", chat: chat, text: text})
	return nil
}

func (s *fakeSender) SendChoices(_ context.Context, chat int64, text string, choices []telegram.Choice) error {
	s.actions = append(s.actions, action{kind: "choices", chat: chat, text: text, choices: choices})
	return nil
}

func (s *fakeSender) SendFile(_ context.Context, chat int64, name string, data []byte, caption string) error {
	s.actions = append(s.actions, action{kind: "file", chat: chat, name: name, text: string(data)})
	return nil
}

func (s *fakeSender) AnswerCallback(_ context.Context, id, text string) error {
	s.actions = append(s.actions, action{kind: "ack", text: text})
	return nil
}

func (s *fakeSender) ofKind(kind string) []action {
	var out []action
	for _, a := range s.actions {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) FetchDocument(_ context.Context, fileID string) ([]byte, error) {
	d, ok := f.data[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file id %s", fileID)
	}
	return d, nil
}

type fakeEngine struct {
	fn    func(doc extract.Document, r *extract.PageRange) (extract.Result, error)
	calls []*extract.PageRange
}

func (e *fakeEngine) Extract(_ context.Context, doc extract.Document, r *extract.PageRange) (extract.Result, error) {
	if r != nil {
		c := *r
		e.calls = append(e.calls, &c)
	} else {
		e.calls = append(e.calls, nil)
	}
	return e.fn(doc, r)
}

type fakeFeedback struct {
	ratings  map[string]int
	comments map[string]string
}

func newFakeFeedback() *fakeFeedback {
	return &fakeFeedback{ratings: map[string]int{}, comments: map[string]string{}}
}

func fbKey(requester int64, conversionID string) string {
	return fmt.Sprintf("%d|%s", requester, conversionID)
}

func (f *fakeFeedback) RecordRating(_ context.Context, requester int64, conversionID string, rating int) error {
	k := fbKey(requester, conversionID)
	if _, ok := f.ratings[k]; !ok {
		f.ratings[k] = rating
	}
	return nil
}

func (f *fakeFeedback) RecordComment(_ context.Context, requester int64, conversionID string, comment string) error {
	k := fbKey(requester, conversionID)
	if _, ok := f.comments[k]; !ok {
		f.comments[k] = comment
	}
	return nil
}

func (f *fakeFeedback) HasFeedback(_ context.Context, requester int64, conversionID string) (bool, error) {
	_, ok := f.ratings[fbKey(requester, conversionID)]
	return ok, nil
}

type recordingSink struct {
	names []constants.EventName
}

func (s *recordingSink) Record(_ context.Context, _ int64, name constants.EventName, _ map[string]any) {
	s.names = append(s.names, name)
}

func (s *recordingSink) count(name constants.EventName) int {
	n := 0
	for _, got := range s.names {
		if got == name {
			n++
		}
	}
	return n
}

type fixture struct {
	orch   *Orchestrator
	sender *fakeSender
	engine *fakeEngine
	fb     *fakeFeedback
	events *recordingSink
}

func newFixture(t *testing.T, fn func(doc extract.Document, r *extract.PageRange) (extract.Result, error)) *fixture {
	t.Helper()
	f := &fixture{
		sender: &fakeSender{},
		engine: &fakeEngine{fn: fn},
		fb:     newFakeFeedback(),
		events: &recordingSink{},
	}
	f.orch = New(Config{ChunkPages: 10, ExtractTimeout: time.Minute}, Deps{
		Sender:   f.sender,
		Files:    &fakeFetcher{data: map[string][]byte{"file1": []byte("%PDF-1.4 data")}},
		Engine:   f.engine,
		Sessions: session.NewStore(10*time.Minute, 15*time.Minute),
		Feedback: f.fb,
		Events:   f.events,
	}, nil)
	return f
}

func textUpdate(updateID, chat int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			From:      &telegram.User{ID: chat},
			Chat:      telegram.Chat{ID: chat},
			Date:      1700000000 + updateID,
			Text:      text,
		},
	}
}

func docUpdate(updateID, chat int64) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID,
			From:      &telegram.User{ID: chat},
			Chat:      telegram.Chat{ID: chat},
			Date:      1700000000 + updateID,
			Document: &telegram.Document{
				FileID:   "file1",
				FileName: "report.pdf",
				MimeType: "application/pdf",
			},
		},
	}
}

func callbackUpdate(updateID, chat int64, callbackID, data string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   callbackID,
			From: telegram.User{ID: chat},
			Message: &telegram.Message{
				Chat: telegram.Chat{ID: chat},
			},
			Data: data,
		},
	}
}

func directResult(text string) func(extract.Document, *extract.PageRange) (extract.Result, error) {
	return func(extract.Document, *extract.PageRange) (extract.Result, error) {
		return extract.Result{Text: text, Provenance: extract.ProvenanceDirect, TotalPages: 2}, nil
	}
}

func TestStartThenDocumentDelivers(t *testing.T) {
	f := newFixture(t, directResult("hello text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))

	files := f.sender.ofKind("file")
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}
	if files[0].name != "report.txt" {
		t.Errorf("file name = %q", files[0].name)
	}
	if files[0].text != "hello text" {
		t.Errorf("file body = %q", files[0].text)
	}
	// one rating prompt with buttons 1..5
	prompts := f.sender.ofKind("choices")
	if len(prompts) != 1 || len(prompts[0].choices) != 5 {
		t.Fatalf("rating prompt: %+v", prompts)
	}
	if f.events.count(constants.EventConversionDirect) != 1 {
		t.Errorf("events: %v", f.events.names)
	}
}

func TestDuplicateMessageProcessedOnce(t *testing.T) {
	f := newFixture(t, directResult("hello"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	upd := docUpdate(2, 42)
	for range 3 {
		f.orch.HandleUpdate(ctx, upd)
	}

	if len(f.engine.calls) != 1 {
		t.Errorf("engine called %d times, want 1", len(f.engine.calls))
	}
	if got := len(f.sender.ofKind("file")); got != 1 {
		t.Errorf("got %d files, want 1", got)
	}
}

func TestDuplicateCallbackProcessedOnce(t *testing.T) {
	f := newFixture(t, directResult("hello"))
	ctx := context.Background()

	upd := callbackUpdate(5, 42, "cb-1", "rate:1-1700000000:3")
	f.orch.HandleUpdate(ctx, upd)
	f.orch.HandleUpdate(ctx, upd)

	if got := len(f.sender.ofKind("ack")); got != 1 {
		t.Errorf("got %d acks, want 1", got)
	}
}

func TestDocumentWithoutIntentRejected(t *testing.T) {
	f := newFixture(t, directResult("hello"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, docUpdate(1, 42))

	if len(f.engine.calls) != 0 {
		t.Errorf("engine must not run, got %d calls", len(f.engine.calls))
	}
	texts := f.sender.ofKind("text")
	if len(texts) != 1 || texts[0].text != msgDocUnexpected {
		t.Errorf("guidance reply: %+v", texts)
	}
}

func TestUnsupportedUploadNoSideEffects(t *testing.T) {
	f := newFixture(t, func(extract.Document, *extract.PageRange) (extract.Result, error) {
		return extract.Result{}, fmt.Errorf("%w: not a pdf", common.ErrUnsupportedInput)
	})
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))

	if got := len(f.sender.ofKind("file")); got != 0 {
		t.Errorf("got %d files, want 0", got)
	}
	if f.events.count(constants.EventUploadRejected) != 1 {
		t.Errorf("events: %v", f.events.names)
	}

	// the upload intent survives the rejection: the next document goes
	// straight into extraction
	f.engine.fn = directResult("ok")
	f.orch.HandleUpdate(ctx, docUpdate(3, 42))
	if got := len(f.sender.ofKind("file")); got != 1 {
		t.Errorf("retry after rejection: got %d files, want 1", got)
	}
}

func largeScanEngine(totalPages int, pageText string) func(extract.Document, *extract.PageRange) (extract.Result, error) {
	return func(_ extract.Document, r *extract.PageRange) (extract.Result, error) {
		if r == nil {
			return extract.Result{TotalPages: totalPages}, &extract.LargeScanError{TotalPages: totalPages}
		}
		return extract.Result{
			Text:       pageText,
			Provenance: extract.ProvenanceRecognized,
			TotalPages: totalPages,
			Range:      *r,
		}, nil
	}
}

func TestLargeScanPromptsInsteadOfAutoRecognizing(t *testing.T) {
	f := newFixture(t, largeScanEngine(25, "page text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))

	if got := len(f.sender.ofKind("file")); got != 0 {
		t.Fatalf("no file may be sent before the choice, got %d", got)
	}
	prompts := f.sender.ofKind("choices")
	if len(prompts) != 1 || len(prompts[0].choices) != 2 {
		t.Fatalf("choice prompt: %+v", prompts)
	}
	if prompts[0].choices[0].Data != cbScanFirst || prompts[0].choices[1].Data != cbScanSplit {
		t.Errorf("choice data: %+v", prompts[0].choices)
	}
	if f.events.count(constants.EventLargeScanPrompted) != 1 {
		t.Errorf("events: %v", f.events.names)
	}
}

func TestLargeScanFirstChunk(t *testing.T) {
	f := newFixture(t, largeScanEngine(25, "page text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))
	f.orch.HandleUpdate(ctx, callbackUpdate(3, 42, "cb-1", cbScanFirst))

	// second engine call carries the bounded range
	if len(f.engine.calls) != 2 {
		t.Fatalf("engine calls = %d, want 2", len(f.engine.calls))
	}
	r := f.engine.calls[1]
	if r == nil || r.First != 1 || r.Last != 10 {
		t.Errorf("range = %v, want [1,10]", r)
	}
	if got := len(f.sender.ofKind("file")); got != 1 {
		t.Errorf("got %d files, want 1", got)
	}
}

func TestLargeScanSplitCoversAllPages(t *testing.T) {
	f := newFixture(t, largeScanEngine(25, "page text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))
	f.orch.HandleUpdate(ctx, callbackUpdate(3, 42, "cb-1", cbScanSplit))

	want := []extract.PageRange{{First: 1, Last: 10}, {First: 11, Last: 20}, {First: 21, Last: 25}}
	got := f.engine.calls[1:]
	if len(got) != len(want) {
		t.Fatalf("engine range calls = %d, want %d", len(got), len(want))
	}
	for i, r := range got {
		if r == nil || *r != want[i] {
			t.Errorf("call %d range = %v, want %v", i, r, want[i])
		}
	}
	if got := len(f.sender.ofKind("file")); got != 3 {
		t.Errorf("got %d files, want 3", got)
	}
	// one rating prompt total, after the last chunk
	ratingPrompts := 0
	for _, a := range f.sender.ofKind("choices") {
		if a.text == msgRatingPrompt {
			ratingPrompts++
		}
	}
	if ratingPrompts != 1 {
		t.Errorf("rating prompts = %d, want 1", ratingPrompts)
	}
}

func TestScanChoiceExpired(t *testing.T) {
	f := newFixture(t, largeScanEngine(25, "page text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, callbackUpdate(1, 42, "cb-1", cbScanFirst))

	texts := f.sender.ofKind("text")
	if len(texts) != 1 || texts[0].text != msgScanExpired {
		t.Errorf("expired reply: %+v", texts)
	}
	if len(f.engine.calls) != 0 {
		t.Errorf("engine must not run, got %d calls", len(f.engine.calls))
	}
}

func TestRatingThenCommentFlow(t *testing.T) {
	f := newFixture(t, directResult("hello"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))

	// pull the conversion id out of the rating prompt buttons
	prompts := f.sender.ofKind("choices")
	if len(prompts) != 1 {
		t.Fatalf("rating prompt missing: %+v", prompts)
	}
	data := prompts[0].choices[3].Data // "rate:<id>:4"
	parts := strings.SplitN(strings.TrimPrefix(data, cbRatePrefix), ":", 2)
	conversionID := parts[0]

	f.orch.HandleUpdate(ctx, callbackUpdate(3, 42, "cb-rate", data))
	if got := f.fb.ratings[fbKey(42, conversionID)]; got != 4 {
		t.Fatalf("rating = %d, want 4", got)
	}
	if f.events.count(constants.EventRatingRecorded) != 1 {
		t.Errorf("events: %v", f.events.names)
	}

	// second rating for the same conversion does not overwrite
	f.orch.HandleUpdate(ctx, callbackUpdate(4, 42, "cb-rate-2", cbRatePrefix+conversionID+":1"))
	if got := f.fb.ratings[fbKey(42, conversionID)]; got != 4 {
		t.Errorf("rating after replay = %d, want 4", got)
	}
	if f.events.count(constants.EventRatingRecorded) != 1 {
		t.Errorf("second rating must not record an event: %v", f.events.names)
	}

	// opt in to a comment, then send it as plain text
	f.orch.HandleUpdate(ctx, callbackUpdate(5, 42, "cb-comment", cbCommentPrefix+conversionID))
	f.orch.HandleUpdate(ctx, textUpdate(6, 42, "отличный результат"))

	if got := f.fb.comments[fbKey(42, conversionID)]; got != "отличный результат" {
		t.Errorf("comment = %q", got)
	}
	if f.events.count(constants.EventCommentRecorded) != 1 {
		t.Errorf("events: %v", f.events.names)
	}

	// comment state is consumed: further text gets guidance
	f.orch.HandleUpdate(ctx, textUpdate(7, 42, "ещё текст"))
	texts := f.sender.ofKind("text")
	if last := texts[len(texts)-1]; last.text != msgGuidanceIdle {
		t.Errorf("post-comment text reply = %q", last.text)
	}
}

func TestCancelResetsEverything(t *testing.T) {
	f := newFixture(t, largeScanEngine(25, "page text"))
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42)) // parks the large scan
	f.orch.HandleUpdate(ctx, textUpdate(3, 42, "/cancel"))
	f.orch.HandleUpdate(ctx, callbackUpdate(4, 42, "cb-1", cbScanFirst))

	texts := f.sender.ofKind("text")
	if last := texts[len(texts)-1]; last.text != msgScanExpired {
		t.Errorf("choice after cancel = %q, want expired reply", last.text)
	}
}

func TestNoExtractableTextReported(t *testing.T) {
	f := newFixture(t, func(extract.Document, *extract.PageRange) (extract.Result, error) {
		return extract.Result{}, fmt.Errorf("%w: pages [1,10]", common.ErrNoExtractableText)
	})
	ctx := context.Background()

	f.orch.HandleUpdate(ctx, textUpdate(1, 42, "/start"))
	f.orch.HandleUpdate(ctx, docUpdate(2, 42))

	texts := f.sender.ofKind("text")
	if last := texts[len(texts)-1]; last.text != msgNoText {
		t.Errorf("failure reply = %q", last.text)
	}
	if f.events.count(constants.EventConversionFailed) != 1 {
		t.Errorf("events: %v", f.events.names)
	}
}
