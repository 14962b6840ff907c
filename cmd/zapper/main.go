// CLAUDE:SUMMARY Entry point for the zapper tuning daemon: chi admin API behind the shield stack, Chrome session pool, lineup hot reload, optional MCP stdio.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-rod/rod"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/zapper/browser"
	"github.com/hazyhaar/zapper/config"
	"github.com/hazyhaar/zapper/dbopen"
	"github.com/hazyhaar/zapper/lineup"
	"github.com/hazyhaar/zapper/shield"
	"github.com/hazyhaar/zapper/trace"
	"github.com/hazyhaar/zapper/tunelog"
	"github.com/hazyhaar/zapper/tuner"
	"github.com/hazyhaar/zapper/watch"
)

func main() {
	configPath := flag.String("config", env("ZAPPER_CONFIG", "zapper.yaml"), "path to the YAML configuration")
	listen := flag.String("listen", "", "listen address override ([host]:port)")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "debug | info | warn | error")
	hashPassword := flag.Bool("hash-password", false, "read a password from stdin, print its bcrypt hash, exit")
	flag.Parse()

	if *hashPassword {
		if err := printPasswordHash(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Logging.
	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Configuration. A missing file is not fatal: the lineup is editable at
	// runtime through the admin API, sites can be added to the file later.
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Error("config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Warn("config file not found, using defaults", "path", *configPath)
		cfg = config.Default()
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Trace DB, opened with the raw "sqlite" driver (never "sqlite-trace",
	// that would recurse).
	traceDB, err := dbopen.Open(filepath.Join(cfg.DataDir, "traces.db"), dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("trace db", "error", err)
		os.Exit(1)
	}
	defer traceDB.Close()
	traceStore := trace.NewStore(traceDB)
	if err := traceStore.Init(); err != nil {
		slog.Error("trace init", "error", err)
		os.Exit(1)
	}
	trace.SetStore(traceStore)
	defer traceStore.Close()

	// Lineup DB, traced.
	lineupDB, err := dbopen.Open(filepath.Join(cfg.DataDir, "lineup.db"),
		dbopen.WithMkdirAll(), dbopen.WithTrace())
	if err != nil {
		slog.Error("lineup db", "error", err)
		os.Exit(1)
	}
	defer lineupDB.Close()
	if err := lineup.Init(lineupDB); err != nil {
		slog.Error("lineup init", "error", err)
		os.Exit(1)
	}

	// Tune event log, traced.
	tunelogDB, err := dbopen.Open(filepath.Join(cfg.DataDir, "tunelog.db"),
		dbopen.WithMkdirAll(), dbopen.WithTrace())
	if err != nil {
		slog.Error("tunelog db", "error", err)
		os.Exit(1)
	}
	defer tunelogDB.Close()
	if err := tunelog.Init(tunelogDB); err != nil {
		slog.Error("tunelog init", "error", err)
		os.Exit(1)
	}
	eventLog := tunelog.New(tunelogDB, 256, tunelog.WithLogger(logger))
	defer eventLog.Close()

	// Seed the lineup from the config file; existing rows win.
	lineupAdmin := lineup.NewAdmin(lineupDB)
	if added, err := lineupAdmin.Seed(ctx, seedEntries(cfg)); err != nil {
		slog.Error("lineup seed", "error", err)
		os.Exit(1)
	} else if added > 0 {
		slog.Info("lineup seeded", "added", added)
	}

	store := lineup.NewStore(lineupDB, lineup.WithLogger(logger))
	if err := store.Reload(ctx); err != nil {
		slog.Error("lineup reload", "error", err)
		os.Exit(1)
	}

	// Engine.
	engine := tuner.New(tuner.Config{
		NavigateTimeout: cfg.Tuner.NavigateTimeout,
		WaitTimeout:     cfg.Tuner.WaitTimeout,
		Logger:          logger,
	})

	// Browser manager and per-site session pool.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		MemoryLimit:      cfg.Browser.MemoryLimit,
		RecycleInterval:  cfg.Browser.RecycleInterval,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Stealth:          browser.ParseStealthLevel(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		slog.Error("browser start", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	siteURLs := make(map[string]string, len(cfg.Sites))
	for _, s := range cfg.Sites {
		siteURLs[s.Name] = s.URL
	}
	pool := browser.NewPool(browser.PoolConfig{
		Manager:         mgr,
		SiteURLs:        siteURLs,
		NavigateTimeout: cfg.Tuner.NavigateTimeout,
		Logger:          logger,
	})

	// Recycling kills every tab and restarts Chrome: drop the sessions
	// first, then the caches that described pages of the dead process.
	mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: pool.DropAll,
		AfterRecycle:  func(*rod.Browser) { engine.ClearAllCaches() },
	})

	tunerAdmin := tuner.NewAdmin(tuner.AdminConfig{
		Engine:      engine,
		Profiles:    store,
		Pages:       pool,
		Events:      eventLog,
		TuneTimeout: cfg.Tuner.TuneTimeout,
		Logger:      logger,
	})

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.APIStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"channels": store.Len(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(shield.BasicAuth("zapper", cfg.Admin.Username, cfg.Admin.PasswordHash))
		r.Use(httprate.Limit(cfg.Admin.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP)))

		r.Route("/v1", func(r chi.Router) {
			tunerAdmin.RegisterRoutes(r)
			r.Route("/channels", func(r chi.Router) {
				r.Get("/discover", tunerAdmin.HandleDiscover)
				lineupAdmin.RegisterRoutes(r)
			})
			r.Route("/events", eventLog.RegisterRoutes)
		})
	})

	g, ctx := errgroup.WithContext(ctx)

	// Lineup hot reload: admin writes bump the snapshot without a restart.
	watcher := watch.New(lineupDB, watch.Options{Logger: logger})
	g.Go(func() error {
		watcher.OnChange(ctx, func() error { return store.Reload(ctx) })
		return nil
	})

	// Retention sweep for tune events and SQL traces.
	g.Go(func() error {
		ticker := time.NewTicker(12 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := eventLog.Cleanup(ctx, cfg.Events.RetentionDays); err != nil {
					slog.Warn("tunelog cleanup", "error", err)
				} else if n > 0 {
					slog.Info("tunelog cleanup", "deleted", n)
				}
				if n, err := traceStore.Cleanup(ctx, cfg.Events.RetentionDays); err != nil {
					slog.Warn("trace cleanup", "error", err)
				} else if n > 0 {
					slog.Info("trace cleanup", "deleted", n)
				}
			}
		}
	})

	// Optional MCP stdio transport next to HTTP.
	if cfg.MCP.Stdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "zapper", Version: "1.0.0"}, nil)
		tunerAdmin.RegisterMCP(mcpSrv)
		lineupAdmin.RegisterMCP(mcpSrv)
		g.Go(func() error {
			slog.Info("mcp stdio transport starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp: %w", err)
			}
			return nil
		})
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute, // a tune can legitimately take 90s
		IdleTimeout:       60 * time.Second,
	}
	g.Go(func() error {
		slog.Info("zapper starting", "addr", cfg.Listen, "sites", len(cfg.Sites))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("zapper stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("zapper stopped")
}

// seedEntries converts config channel entries to lineup rows. Seeded rows
// start enabled; the admin API can disable them later.
func seedEntries(cfg *config.Config) []lineup.Entry {
	entries := make([]lineup.Entry, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		entries = append(entries, lineup.Entry{
			Name:           c.Name,
			Number:         c.Number,
			Site:           c.Site,
			Strategy:       c.Strategy,
			Channel:        c.Channel,
			GuideURL:       c.GuideURL,
			RevealSelector: c.RevealSelector,
			PlaySelector:   c.PlaySelector,
			RailSelector:   c.RailSelector,
			DiscoverLabel:  c.DiscoverLabel,
			Enabled:        true,
		})
	}
	return entries
}

func printPasswordHash() error {
	fmt.Fprint(os.Stderr, "password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return fmt.Errorf("no password on stdin")
	}
	hash, err := shield.HashPassword(scanner.Text())
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
