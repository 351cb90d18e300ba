// Package main is the entry point for the launch watch engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/launchwatch/engine/internal/config"
	"github.com/launchwatch/engine/internal/ingest"
	"github.com/launchwatch/engine/internal/journal"
	"github.com/launchwatch/engine/internal/metrics"
	"github.com/launchwatch/engine/internal/notify"
	"github.com/launchwatch/engine/internal/scanner"
	"github.com/launchwatch/engine/internal/store"
	"github.com/launchwatch/engine/internal/tracker"
	"github.com/launchwatch/engine/internal/ui"
)

const (
	// EventChannelBuffer is the size of the buffered journal event channel
	EventChannelBuffer = 256

	// ShutdownTimeout bounds the metrics server shutdown
	ShutdownTimeout = 5 * time.Second
)

func main() {
	testAlert := flag.Bool("test-alert", false, "post a synthetic admission alert and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file while it runs
	logOut := io.Writer(os.Stdout)
	if cfg.EnableTUI && !*testAlert {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			slog.Error("failed to open log file", "path", cfg.LogFile, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(setupLogger(cfg.LogLevel, logOut))

	slog.Info("launchwatch starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"dexscreener_url", cfg.DexScreenerURL,
		"target_chain", cfg.TargetChain,
		"min_market_cap", cfg.MinMarketCap,
		"max_market_cap", cfg.MaxMarketCap,
		"min_liquidity", cfg.MinLiquidity,
		"min_volume_1h", cfg.MinVolume1h,
		"max_age_minutes", cfg.MaxAgeMinutes,
		"require_socials", cfg.RequireSocials,
		"scan_interval", cfg.ScanInterval,
		"track_interval", cfg.TrackInterval,
		"track_concurrency", cfg.TrackConcurrency,
		"discord_bot_token", cfg.MaskedBotToken(),
		"discord_channel_id", cfg.DiscordChannelID,
		"discord_gateway", cfg.DiscordGateway,
		"dry_run", cfg.DryRun,
		"journal_path", cfg.JournalPath,
		"database_url", cfg.MaskedDatabaseURL(),
		"prometheus_port", cfg.PrometheusPort,
		"enable_tui", cfg.EnableTUI,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	collector := metrics.NewCollector()

	sink, err := newSink(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise notification sink", "error", err)
		os.Exit(1)
	}

	provider := ingest.NewClient(cfg.DexScreenerURL, cfg.HTTPTimeout)
	ledger := store.NewLedger()
	positions := store.NewPositionStore()
	events := make(chan store.Event, EventChannelBuffer)

	scan := scanner.New(cfg, provider, sink, ledger, positions, collector, events)
	track := tracker.New(cfg, provider, sink, positions, collector, events)

	writer := openJournal(ctx, cfg)
	var app *ui.App
	if cfg.EnableTUI && !*testAlert {
		app = ui.NewApp(positions, collector, cfg.UIRefreshRate)
	}

	drainCtx, stopDrain := context.WithCancel(context.Background())
	var drainWG sync.WaitGroup
	drainWG.Add(1)
	go func() {
		defer drainWG.Done()
		journal.Drain(drainCtx, events, writer, func(ev store.Event) {
			collector.SetEventBuffer(len(events), cap(events))
			if app != nil {
				app.OnEvent(ev)
			}
		})
	}()

	if *testAlert {
		os.Exit(runTestAlert(ctx, cfg, scan, stopDrain, &drainWG, writer))
	}

	// Metrics endpoint
	var metricsServer *http.Server
	if cfg.PrometheusPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.PrometheusPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics_server_failed", "error", err)
			}
		}()
		slog.Info("metrics_server_started", "addr", metricsServer.Addr)
	}

	// Gateway session keeps the bot online; an auth failure is fatal
	var gateway *notify.Gateway
	if !cfg.DryRun && cfg.DiscordGateway {
		gateway = notify.NewGateway(notify.DefaultGatewayURL, cfg.DiscordBotToken, collector.SetGatewayStatus)
		gateway.Start(ctx)
		go func() {
			select {
			case <-ctx.Done():
			case err := <-gateway.Fatal():
				slog.Error("gateway_fatal", "error", err)
				cancel()
			}
		}()
	}

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		scan.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		track.Run(ctx)
	}()

	slog.Info("engine_started",
		"status", "scanning",
		"chain", cfg.TargetChain,
		"dry_run", cfg.DryRun,
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if app != nil {
		slog.Info("starting_tui")

		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
			}
			cancel()
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
		case <-ctx.Done():
		}
		app.Stop()
	} else {
		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
		case <-ctx.Done():
		}
	}

	cancel()

	// Graceful shutdown
	slog.Info("shutting_down", "status", "stopping loops")
	loops.Wait()

	if gateway != nil {
		gateway.Stop()
	}

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), ShutdownTimeout)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics_server_shutdown_failed", "error", err)
		}
		cancelShutdown()
	}

	// Flush buffered events to the journal
	stopDrain()
	drainWG.Wait()
	if err := writer.Close(); err != nil {
		slog.Warn("journal_close_failed", "error", err)
	}

	slog.Info("shutdown_complete",
		"admitted", ledger.Len(),
		"positions", positions.Len(),
	)
}

// newSink returns the dry-run log sink or a verified Discord sink.
func newSink(ctx context.Context, cfg *config.Config) (notify.Sink, error) {
	if cfg.DryRun {
		slog.Info("dry_run_enabled", "status", "alerts are logged, not posted")
		return notify.NewLogSink(), nil
	}

	discord := notify.NewDiscord(cfg.DiscordAPIURL, cfg.DiscordBotToken, cfg.HTTPTimeout)
	verifyCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
	defer cancel()
	if err := discord.Verify(verifyCtx); err != nil {
		return nil, fmt.Errorf("verify discord token: %w", err)
	}
	return discord, nil
}

// openJournal combines the JSONL file journal with the optional Postgres
// journal. A Postgres failure leaves the file journal in place.
func openJournal(ctx context.Context, cfg *config.Config) journal.Writer {
	writers := journal.Tee{journal.NewJSONL(cfg.JournalPath)}

	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
		defer cancel()
		pg, err := journal.NewPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("postgres_journal_unavailable", "error", err)
		} else {
			slog.Info("postgres_journal_enabled")
			writers = append(writers, pg)
		}
	}
	return writers
}

// runTestAlert posts one synthetic admission and returns the exit code.
func runTestAlert(ctx context.Context, cfg *config.Config, scan *scanner.Scanner,
	stopDrain context.CancelFunc, drainWG *sync.WaitGroup, writer journal.Writer) int {

	candidate := scanner.SyntheticCandidate(cfg.TargetChain, time.Now())
	ref, err := scan.AdmitTest(ctx, candidate)

	stopDrain()
	drainWG.Wait()
	if closeErr := writer.Close(); closeErr != nil {
		slog.Warn("journal_close_failed", "error", closeErr)
	}

	if err != nil {
		slog.Error("test_alert_failed", "error", err)
		return 1
	}
	slog.Info("test_alert_sent", "address", candidate.Address, "channel", ref.ChannelID, "message", ref.MessageID)
	return 0
}

// openLogFile opens path for appending, creating parent directories.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(out, opts)
	return slog.New(handler)
}
