// CLAUDE:SUMMARY CLI entry point for chartfill — agent server, single-page map, and live fill modes.
// Command chartfill maps clinical forms and fills them.
//
// Usage:
//
//	chartfill -serve                         # run the agent (HTTP) with chartfill.yaml
//	chartfill -mcp                           # run the agent as an MCP server on stdio
//	chartfill -map https://ehr.example/...   # map a single page, print the field map
//	chartfill -fill https://ehr.example/...  # map then execute a fill plan on the page
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/chartfill/agent"
	"github.com/hazyhaar/chartfill/anchor"
	"github.com/hazyhaar/chartfill/dbopen"
	"github.com/hazyhaar/chartfill/notegen"
	"github.com/hazyhaar/chartfill/observability"
	"github.com/hazyhaar/chartfill/planner"
	"github.com/hazyhaar/chartfill/readiness"
)

func main() {
	serve := flag.Bool("serve", false, "run the agent HTTP server")
	mcpMode := flag.Bool("mcp", false, "run the agent as an MCP server on stdio")
	mapURL := flag.String("map", "", "map a single URL and print the field map")
	fillURL := flag.String("fill", "", "map a single URL, build a plan, and execute it")
	note := flag.String("note", "", "note text for -fill (skips generation)")
	doctorID := flag.String("doctor", "", "doctor id attached to maps for readiness tracking")
	configPath := flag.String("config", "chartfill.yaml", "path to chartfill.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *serve, *mcpMode, *mapURL, *fillURL, *note, *doctorID); err != nil {
		logger.Error("chartfill: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, serve, mcpMode bool, mapURL, fillURL, note, doctorID string) error {
	cfg := loadConfig(logger, configPath)

	if serve {
		return runServe(ctx, logger, cfg)
	}
	if mcpMode {
		return runMCP(ctx, logger, cfg)
	}
	if mapURL != "" {
		return runMap(ctx, logger, mapURL, doctorID)
	}
	if fillURL != "" {
		return runFill(ctx, logger, fillURL, note, doctorID)
	}

	fmt.Fprintln(os.Stderr, "usage: chartfill -serve | -mcp | -map <url> | -fill <url> [-note <text>]")
	os.Exit(1)
	return nil
}

// loadConfig falls back to defaults when the config file is absent; a
// missing file is normal for the single-page modes.
func loadConfig(logger *slog.Logger, path string) *agent.Config {
	cfg, err := agent.LoadConfigFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("config load failed, using defaults", "path", path, "error", err)
		}
		return agent.DefaultConfig()
	}
	return cfg
}

// buildService assembles the agent with its durable store and optional
// note generator. The returned cleanup closes the database.
func buildService(logger *slog.Logger, cfg *agent.Config) (*agent.Service, func(), error) {
	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithSchema(readiness.Schema),
		dbopen.WithSchema(observability.Schema),
		dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}

	scorer := readiness.NewScorer(db, cfg.Readiness, logger)
	events := observability.NewEventLogger(db)

	builderOpts := []planner.Option{planner.WithLogger(logger)}
	if cfg.NotegenEnabled {
		gen, err := notegen.New(cfg.Notegen)
		if err != nil {
			logger.Warn("note generation disabled", "error", err)
		} else {
			builderOpts = append(builderOpts, planner.WithNoteGenerator(gen))
		}
	}

	svc := agent.NewService(
		agent.WithLogger(logger),
		agent.WithScorer(scorer),
		agent.WithEventLog(events),
		agent.WithBuilder(planner.NewBuilder(builderOpts...)),
	)
	return svc, func() { db.Close() }, nil
}

func runServe(ctx context.Context, logger *slog.Logger, cfg *agent.Config) error {
	svc, cleanup, err := buildService(logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	r := chi.NewRouter()
	svc.RegisterHTTP(r)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("agent listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *agent.Config) error {
	svc, cleanup, err := buildService(logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "chartfill",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)

	logger.Info("mcp server on stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func openSession(ctx context.Context, logger *slog.Logger, pageURL, doctorID string) (*anchor.Session, *anchor.Browser, error) {
	b, err := anchor.StartBrowser(ctx, anchor.BrowserConfig{Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}

	sess, err := b.OpenSession(ctx, pageURL,
		anchor.WithSessionLogger(logger),
		anchor.WithDoctorID(doctorID),
	)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return sess, b, nil
}

func runMap(ctx context.Context, logger *slog.Logger, pageURL, doctorID string) error {
	sess, mgr, err := openSession(ctx, logger, pageURL, doctorID)
	if err != nil {
		return err
	}
	defer mgr.Close()
	defer sess.Close()

	m, err := sess.Map(ctx)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runFill(ctx context.Context, logger *slog.Logger, pageURL, note, doctorID string) error {
	sess, mgr, err := openSession(ctx, logger, pageURL, doctorID)
	if err != nil {
		return err
	}
	defer mgr.Close()
	defer sess.Close()

	plan, res, err := sess.Fill(ctx, note)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"plan": plan, "result": res})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
