package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/fyydbot/internal/api"
	"github.com/kalambet/fyydbot/internal/composer"
	"github.com/kalambet/fyydbot/internal/config"
	"github.com/kalambet/fyydbot/internal/dispatch"
	"github.com/kalambet/fyydbot/internal/engine"
	"github.com/kalambet/fyydbot/internal/fyyd"
	"github.com/kalambet/fyydbot/internal/intent"
	"github.com/kalambet/fyydbot/internal/mastodon"
	"github.com/kalambet/fyydbot/internal/metrics"
	"github.com/kalambet/fyydbot/internal/pipeline"
	"github.com/kalambet/fyydbot/internal/retry"
)

// app holds the components shared by the run and search commands.
type app struct {
	cfg       config.Config
	metrics   *metrics.Metrics
	oracle    engine.Engine
	names     *fyyd.NameCache
	extractor *intent.Extractor
	finder    *pipeline.Finder
	started   time.Time
}

func newApp(cfg config.Config) (*app, error) {
	oracle, err := engine.New(engine.DetectConfig{
		Provider: cfg.Oracle.Provider,
		BaseURL:  cfg.Oracle.BaseURL,
		Model:    cfg.Oracle.Model,
		APIKey:   cfg.Oracle.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oracle: %w", err)
	}

	m := metrics.New()
	names := fyyd.NewNameCache()
	m.WatchCache(names)

	search := fyyd.NewClientWithBaseURL(cfg.Fyyd.BaseURL, names, cfg.Fyyd.Blacklist)
	extractor := intent.NewExtractor(oracle, cfg.Oracle.Model).
		WithTimeout(cfg.Oracle.Timeout).
		WithMaxTokens(cfg.Oracle.MaxTokens)

	return &app{
		cfg:       cfg,
		metrics:   m,
		oracle:    oracle,
		names:     names,
		extractor: extractor,
		finder:    pipeline.NewFinder(extractor, search, composer.New(), m),
		started:   time.Now(),
	}, nil
}

func (a *app) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if a.cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = a.cfg.Retry.MaxAttempts
	}
	if a.cfg.Retry.Unit > 0 {
		p.Unit = a.cfg.Retry.Unit
	}
	p.OnRetry = a.metrics.SocialRetry
	return p
}

func (a *app) status() *api.Status {
	return &api.Status{Version: version, Started: a.started, Cache: a.names, Metrics: a.metrics}
}

func (a *app) mcpServer() *server.MCPServer {
	return api.NewMCPServer(api.MCPDeps{
		Finder:  a.finder,
		Dates:   a.extractor,
		Status:  a.status(),
		Version: version,
	})
}

// setupLogging installs the configured logger as default and returns its
// cleanup.
func setupLogging(cfg config.Config) func() error {
	logger, cleanup := config.SetupLogger(cfg.Log.File, config.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)
	return cleanup
}

// checkReady runs the startup checks concurrently: the oracle must serve
// the model and the access token must be valid.
func checkReady(ctx context.Context, a *app, social *mastodon.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.EnsureReady(gctx, a.oracle, a.cfg.Oracle.Model, os.Stderr)
	})
	g.Go(func() error {
		acct, err := social.VerifyCredentials(gctx)
		if err != nil {
			return err
		}
		printSuccess("Logged in to %s as @%s", a.cfg.Mastodon.Instance, acct)
		return nil
	})
	return g.Wait()
}

func runBot(withMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	printStep("fyydbot %s starting", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	social := mastodon.New(cfg.Mastodon.Instance, cfg.Mastodon.AccessToken, a.retryPolicy())

	if err := checkReady(ctx, a, social); err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewStatusHandler(a.status()),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	dispatcher := dispatch.New(social, a.finder, dispatch.Config{
		PollInterval:  cfg.Bot.PollInterval,
		FetchCooldown: cfg.Bot.FetchCooldown,
		Acknowledge:   cfg.Bot.Acknowledge,
	}, a.metrics)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		printSuccess("Status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if err == nil {
			// Cancelled; the status server shuts down with the group context.
			return nil
		}
		return fmt.Errorf("dispatcher stopped: %w", err)
	})

	if withMCP {
		stdio := server.NewStdioServer(a.mcpServer())
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		fmt.Fprintln(os.Stderr, "shutting down...")
	}
	return err
}

// serveMCP runs only the MCP stdio server, without touching Mastodon.
func serveMCP(ctx context.Context, a *app) error {
	stdio := server.NewStdioServer(a.mcpServer())
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
