package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdfscribe/pdfscribe/internal/bot"
	"github.com/pdfscribe/pdfscribe/internal/common"
	"github.com/pdfscribe/pdfscribe/internal/export"
	"github.com/pdfscribe/pdfscribe/internal/extract"
	"github.com/pdfscribe/pdfscribe/internal/feedback"
	"github.com/pdfscribe/pdfscribe/internal/improve"
	"github.com/pdfscribe/pdfscribe/internal/repository"
	"github.com/pdfscribe/pdfscribe/internal/session"
	"github.com/pdfscribe/pdfscribe/internal/telegram"
	"github.com/pdfscribe/pdfscribe/internal/track"
)

var (
	webhookURLFlag string
	reportOutFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "pdfscribe",
	Short: "Telegram bot that converts PDF documents to plain text",
	Long: `pdfscribe receives PDF uploads over a Telegram webhook, extracts the
embedded text layer or falls back to page-by-page recognition, and
replies with a .txt document.

Configuration comes from environment variables (BOT_TOKEN, WEBHOOK_ADDR,
WEBHOOK_SECRET, DB_PATH, OCR_*, OPENROUTER_API_KEY).`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	RunE:  runServe,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the usage stats workbook",
	RunE:  runReport,
}

func init() {
	serveCmd.Flags().StringVar(&webhookURLFlag, "webhook-url", "",
		"public URL to register with the Bot API on startup (skipped when empty)")
	reportCmd.Flags().StringVarP(&reportOutFlag, "out", "o", "stats.xlsx", "output file")
	rootCmd.AddCommand(serveCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config(cfg.Store), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repository.Close(db, logger)

	feedbackRepo := repository.NewFeedbackRepository(db, logger)
	eventRepo := repository.NewEventRepository(db, logger)

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

	client := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.SendTimeout, logger)

	orch := bot.New(bot.Config{
		ChunkPages:     cfg.OCR.ChunkPages,
		ExtractTimeout: cfg.OCR.ExtractTimeout,
		DedupCapacity:  cfg.Session.DedupCapacity,
	}, bot.Deps{
		Sender:   client,
		Files:    client,
		Engine:   engine,
		Improver: improve.New(improve.Config(cfg.Improve), logger),
		Sessions: session.NewStore(cfg.Session.AwaitingFileTTL, cfg.Session.PendingScanTTL),
		Feedback: feedback.NewLedger(feedbackRepo, logger),
		Events:   track.NewSink(eventRepo, logger),
	}, logger)

	if webhookURLFlag != "" {
		if err := client.SetWebhook(ctx, webhookURLFlag, cfg.Telegram.SecretToken); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		logger.Info("webhook registered", "url", webhookURLFlag)
	}

	mux := http.NewServeMux()
	mux.Handle("/webhook", telegram.NewWebhookHandler(cfg.Telegram.SecretToken, orch, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := repository.HealthCheck(r.Context(), db, 3*time.Second); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Telegram.WebhookAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runReport(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := repository.Open(ctx, repository.Config(cfg.Store), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repository.Close(db, logger)

	svc := export.NewService(
		repository.NewEventRepository(db, logger),
		repository.NewFeedbackRepository(db, logger),
		logger,
	)
	data, err := svc.StatsXLSX(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := os.WriteFile(reportOutFlag, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written", "path", reportOutFlag, "bytes", len(data))
	return nil
}
