package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/judwhite/go-svc"
	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/auth"
	"github.com/adcondev/print-servicio/internal/config"
	"github.com/adcondev/print-servicio/internal/printing"
	"github.com/adcondev/print-servicio/internal/server"
	"github.com/adcondev/print-servicio/internal/spooler"
)

// Program implements svc.Service interface
type Program struct {
	// ConfigPath optionally points at a YAML overrides file.
	ConfigPath string
	// Console mirrors log output to the terminal.
	Console bool

	env        config.Environment
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	httpServer *http.Server
	wsServer   *server.Server
	pipeline   *printing.Pipeline
	authMgr    *auth.Manager
	startTime  time.Time
}

// Environment resolves the build environment plus env-var and file overrides.
func (p *Program) Environment() (config.Environment, error) {
	env := config.GetEnvironment(config.BuildEnvironment)
	if p.ConfigPath == "" {
		return env, nil
	}
	return config.LoadFile(p.ConfigPath, env)
}

// Init initializes the service
func (p *Program) Init(_ svc.Environment) error {
	env, err := p.Environment()
	if err != nil {
		return err
	}
	p.env = env

	if err := p.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.Info().Msg("╔════════════════════════════════════════════════════════════╗")
	log.Info().Msg("║   🖨️ PRINT SERVICIO - Local Print Service                  ║")
	log.Info().Msg("╚════════════════════════════════════════════════════════════╝")
	log.Info().Msgf("[INIT] 🚀 Starting service - Environment: %s", env.Name)
	log.Info().Msgf("[INIT] 📅 Build: %s %s", config.BuildDate, config.BuildTime)
	return nil
}

// Start starts the service
func (p *Program) Start() error {
	p.startTime = time.Now()
	p.ctx, p.cancel = context.WithCancel(context.Background())
	cfg := p.env

	backend := spooler.New(spooler.Options{DPI: cfg.RenderDPI, Timeout: cfg.DeviceTimeout})
	p.pipeline = printing.NewPipeline(backend, printing.DecodePDF, printing.Config{DPI: cfg.RenderDPI})

	// Bound to the service context for clean shutdown
	p.authMgr = auth.NewManager(p.ctx, config.AuthTokenHashB64)

	discovery := NewPrinterDiscovery(backend)
	discovery.LogStartupDiagnostics(p.ctx)

	var tokens server.TokenChecker
	if p.authMgr.Enabled() {
		tokens = p.authMgr
	}
	p.wsServer = server.NewServer(server.Config{
		JobsPerMinute: cfg.JobsPerMinute,
		// base64 expands by 4/3, plus room for the envelope.
		MaxMessageBytes: cfg.MaxUploadBytes/3*4 + 1<<20,
		AllowedOrigins:  cfg.AllowedOrigins,
	}, p.pipeline, tokens)

	api := &API{
		Service:        p.pipeline,
		Discovery:      discovery,
		WebSocket:      p.wsServer.HandleWebSocket,
		Clients:        p.wsServer.Clients,
		Protect:        p.authMgr.Middleware,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StartTime:      p.startTime,
	}

	p.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		log.Info().Msg("┌─────────────────────────────────────────────────────────────┐")
		log.Info().Msgf("│ 🖨️ PRINT SERVICIO READY - Environment: %-21s│", cfg.Name)
		log.Info().Msgf("│ 📄 Print:     http://%s/printers/{id}/print", cfg.ListenAddr)
		log.Info().Msgf("│ 🔌 WebSocket: ws://%s/ws", cfg.ListenAddr)
		log.Info().Msgf("│ 💚 Health:    http://%s/health", cfg.ListenAddr)
		log.Info().Msgf("│ 📊 Metrics:   http://%s/metrics", cfg.ListenAddr)
		log.Info().Msgf("│ 🔐 Auth:      %v", p.authMgr.Enabled())
		log.Info().Msgf("│ 🎯 Render:    %d DPI, device timeout %v", cfg.RenderDPI, cfg.DeviceTimeout)
		log.Info().Msg("└─────────────────────────────────────────────────────────────┘")

		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("[HTTP] ❌ Error starting HTTP server")
		}
	}()

	return nil
}

// Stop stops the service gracefully
func (p *Program) Stop() error {
	log.Info().Msg("[STOP] 🛑 Service shutting down...")

	// 1. Cancel context (stops auth cleanup goroutine)
	if p.cancel != nil {
		p.cancel()
	}

	// 2. Shutdown WebSocket server so hijacked connections close
	if p.wsServer != nil {
		p.wsServer.Shutdown()
	}

	// 3. Graceful HTTP shutdown; in-flight print requests finish first
	ctx, cancel := context.WithTimeout(context.Background(), p.env.DeviceTimeout+10*time.Second)
	defer cancel()

	if p.httpServer != nil {
		if err := p.httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("[STOP] ⚠️ HTTP shutdown error")
		}
	}

	p.wg.Wait()

	if p.pipeline != nil {
		stats := p.pipeline.Stats()
		log.Info().Int64("processed", stats.JobsProcessed).Int64("failed", stats.JobsFailed).
			Msgf("[STOP] ✅ Service stopped (uptime: %v)", time.Since(p.startTime).Round(time.Second))
	}
	closeLogFile()
	return nil
}

func (p *Program) initLogging() error {
	logPath := p.env.LogPath(dataDir())
	if err := os.MkdirAll(filepath.Dir(logPath), 0750); err != nil {
		return err
	}

	var extra []io.Writer
	if p.Console {
		extra = append(extra, os.Stderr)
	}
	if err := InitLogger(logPath, p.env.Verbose, extra...); err != nil {
		return err
	}

	log.Info().Msgf("[INIT] 📁 Log file: %s", logPath)
	return nil
}

// dataDir is PROGRAMDATA on Windows and the user cache directory elsewhere.
func dataDir() string {
	if d := os.Getenv("PROGRAMDATA"); d != "" {
		return d
	}
	if d, err := os.UserCacheDir(); err == nil {
		return d
	}
	return os.TempDir()
}
