// Package tamalebot is the public API for embedding the tamalebot
// security-mediated agent runtime.
//
// Programs that want the mediated tool-use loop (spec §4) without writing
// their own wiring import this package:
//
//	app, err := tamalebot.New(
//	    tamalebot.WithLogger(logger),
//	    tamalebot.WithPolicyConfig(policyCfg),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tamalebot (root)
// imports internal/*, but internal/* never imports tamalebot (root).
package tamalebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tamalebot/tamalebot/internal/agent"
	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/auth"
	"github.com/tamalebot/tamalebot/internal/config"
	"github.com/tamalebot/tamalebot/internal/integrity"
	"github.com/tamalebot/tamalebot/internal/mcp"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/provider"
	"github.com/tamalebot/tamalebot/internal/server"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/telemetry"
	"github.com/tamalebot/tamalebot/internal/tools"
	"github.com/tamalebot/tamalebot/internal/vault"
)

const shutdownComponentTimeout = 10 * time.Second

// App is the tamalebot runtime lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	version string

	journal    *audit.Journal
	storage    storage.Backend
	checkpoint *integrity.Checkpointer
	executor   *tools.Executor
	loop       *agent.Loop
	mcpServer  *mcp.Server
	httpServer *server.Server

	otelShutdown telemetry.Shutdown
}

// closer is implemented by storage backends that hold a live connection
// pool (currently only PostgresBackend); backends without one are simply
// left for the garbage collector.
type closer interface {
	Close()
}

// New assembles the mediated agent runtime: vault, audit journal, policy
// engine, tool executor, provider adapter, and agent loop, plus the
// optional MCP and HTTP surfaces (SPEC_FULL.md §12). It does not start any
// goroutines or accept connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present; non-fatal, production won't have one.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("tamalebot: load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.agentID != "" {
		cfg.AgentID = o.agentID
	}
	if o.agentName != "" {
		cfg.AgentName = o.agentName
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tamalebot starting", "version", version, "agent_id", cfg.AgentID, "model", cfg.Model)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("tamalebot: telemetry: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	journal, err := audit.New(workDir)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("tamalebot: audit journal: %w", err)
	}

	backend := o.storage
	if backend == nil {
		backend, err = selectStorage(cfg)
		if err != nil {
			_ = journal.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("tamalebot: storage: %w", err)
		}
	}

	policyCfg := model.PolicyConfig{Name: cfg.PolicyName}
	if cfg.RateLimitEnabled {
		policyCfg.RequestsPerSecond = cfg.RateLimitRPS
		policyCfg.Burst = cfg.RateLimitBurst
	}
	if o.policyCfg != nil {
		policyCfg = *o.policyCfg
	}
	pol := policy.New(policyCfg, "")

	v := vault.New(backend, journal, cfg.AgentID, cfg.VaultKeySource)

	executor := tools.New(pol, journal, v, backend, cfg.AgentID, workDir, logger)

	adapter := o.provider
	if adapter == nil {
		pcfg := provider.DefaultConfig()
		pcfg.Endpoint = resolveEndpoint(cfg)
		pcfg.APIKey = cfg.APIKey
		pcfg.Model = cfg.Model
		adapter = provider.NewHTTPAdapter(provider.WithDialectDetection(pcfg))
	}

	loop := agent.New(adapter, executor)
	if cfg.MaxIterations > 0 {
		loop.MaxIterations = cfg.MaxIterations
	}

	app := &App{
		cfg:          cfg,
		logger:       logger,
		version:      version,
		journal:      journal,
		storage:      backend,
		checkpoint:   integrity.New(journal, backend, cfg.AgentID),
		executor:     executor,
		loop:         loop,
		otelShutdown: otelShutdown,
	}

	if o.mcpEnabled == nil || *o.mcpEnabled {
		app.mcpServer = mcp.New(executor, logger)
	}

	if o.httpEnabled == nil || *o.httpEnabled {
		var jwtMgr *auth.JWTManager
		if cfg.JWTPrivateKeyPath != "" || cfg.JWTPublicKeyPath != "" {
			jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
			if err != nil {
				_ = journal.Close()
				_ = otelShutdown(context.Background())
				return nil, fmt.Errorf("tamalebot: jwt manager: %w", err)
			}
		}

		app.httpServer = server.New(server.Config{
			Loop:         loop,
			Journal:      journal,
			JWTMgr:       jwtMgr,
			Logger:       logger,
			AgentID:      cfg.AgentID,
			Name:         cfg.AgentName,
			Model:        cfg.Model,
			Started:      time.Now(),
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	return app, nil
}

// MCPServer returns the underlying MCP server, or nil if disabled via
// WithMCP(false). Embedding programs that want to serve MCP over a
// transport other than the one tamalebot chooses can reach in here.
func (a *App) MCPServer() *mcp.Server {
	return a.mcpServer
}

// Journal returns the audit journal backing this App.
func (a *App) Journal() *audit.Journal {
	return a.journal
}

// Loop returns the agent loop backing this App, for embedding programs
// that want to drive turns directly rather than through the HTTP surface.
func (a *App) Loop() *agent.Loop {
	return a.loop
}

// Checkpoint commits the current audit journal into the Merkle-batch
// checkpoint chain (SPEC_FULL.md §12, "audit integrity"). It is entirely
// optional — nothing else in the App depends on it having been called.
func (a *App) Checkpoint(ctx context.Context) (integrity.Checkpoint, error) {
	return a.checkpoint.Checkpoint(ctx)
}

// Run starts the HTTP surface, if enabled, along with the background
// schedule-file watcher, and blocks until ctx is cancelled or the server
// fails, then performs a graceful Shutdown.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.executor.WatchScheduleChanges(ctx); err != nil {
			a.logger.Warn("schedule watcher stopped", "error", err)
		}
	}()

	if a.httpServer == nil {
		<-ctx.Done()
		return a.Shutdown(context.Background())
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs a graceful shutdown: stop accepting HTTP requests and
// drain in-flight requests, then flush the audit journal and release the
// storage backend concurrently (spec §5: "the audit journal must flush on
// process termination signals").
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tamalebot shutting down")

	if a.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(ctx, shutdownComponentTimeout)
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
		}
		cancel()
	}

	// Flush the audit journal and release the storage backend
	// concurrently — neither depends on the other completing first.
	var g errgroup.Group
	g.Go(func() error {
		if err := a.journal.Close(); err != nil {
			return fmt.Errorf("audit journal close: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if c, ok := a.storage.(closer); ok {
			c.Close()
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("shutdown drain error", "error", err)
	}

	_ = a.otelShutdown(context.Background())

	a.logger.Info("tamalebot stopped")
	return nil
}

// selectStorage picks a storage.Backend from cfg.StorageURL: a "file://"
// URL selects the filesystem backend, "postgres://" selects Postgres, and
// an empty URL defaults to the in-memory backend (spec §4.7).
func selectStorage(cfg config.Config) (storage.Backend, error) {
	switch {
	case cfg.StorageURL == "":
		return storage.NewMemoryBackend(), nil
	case strings.HasPrefix(cfg.StorageURL, "file://"):
		return storage.NewFileBackend(cfg.StorageURL[len("file://"):])
	case strings.HasPrefix(cfg.StorageURL, "postgres://"), strings.HasPrefix(cfg.StorageURL, "postgresql://"):
		return storage.NewPostgresBackend(context.Background(), cfg.StorageURL)
	default:
		return nil, fmt.Errorf("unrecognized TAMALEBOT_STORAGE_URL scheme: %q", cfg.StorageURL)
	}
}

// resolveEndpoint picks the wire endpoint for cfg.Provider, or infers one
// from cfg.Model's dialect when Provider is unset (spec §4.4).
func resolveEndpoint(cfg config.Config) string {
	switch cfg.Provider {
	case "anthropic":
		return "https://api.anthropic.com/v1/messages"
	case "openai":
		return "https://api.openai.com/v1/chat/completions"
	}

	if provider.DetectDialect(cfg.Model) == provider.DialectFunctionCall {
		return "https://api.openai.com/v1/chat/completions"
	}
	return "https://api.anthropic.com/v1/messages"
}
