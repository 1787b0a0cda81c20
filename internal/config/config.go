// Package config defines environment-specific settings for the Print Servicio.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

// Build variables, injected at compile time
var (
	BuildEnvironment = "local"
	BuildDate        = "unknown"
	BuildTime        = "unknown"
	// ServiceName is used for logging and as part of the log file path.
	ServiceName = "PrintServicio"
	// AuthTokenHashB64 is a base64-encoded bcrypt hash of the API token, injected via ldflags.
	// If empty, print submissions are accepted without a token.
	AuthTokenHashB64 = ""
	// ServerPort is the default port for the service, can be overridden by environment config.
	ServerPort = "8767"
	// AllowedOrigins is a comma-separated list of WebSocket origins injected via ldflags.
	// Example: "https://pos.example.com,http://localhost:*"
	AllowedOrigins = ""
)

// Environment holds environment-specific settings
type Environment struct {
	Name        string
	ServiceName string

	// HTTP
	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64

	// Logging
	Verbose bool

	// Printing
	RenderDPI     int
	DeviceTimeout time.Duration
	JobsPerMinute int

	// Security
	AllowedOrigins []string
}

// LogPath returns the full log file path for this environment.
// Uses the convention: <dataDir>/<ServiceName>/<ServiceName>.log
func (e Environment) LogPath(dataDir string) string {
	return filepath.Join(dataDir, e.ServiceName, e.ServiceName+".log")
}

// environments defines available deployment configurations
var environments = map[string]Environment{
	"remote": {
		Name:           "REMOTO",
		ServiceName:    ServiceName,
		ListenAddr:     "0.0.0.0:" + ServerPort,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   90 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxUploadBytes: 32 << 20,
		Verbose:        false,
		RenderDPI:      100,
		DeviceTimeout:  60 * time.Second,
		JobsPerMinute:  30,
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*", "file://*"},
	},
	"local": {
		Name:           "LOCAL",
		ServiceName:    ServiceName,
		ListenAddr:     "localhost:" + ServerPort,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxUploadBytes: 32 << 20,
		Verbose:        true,
		RenderDPI:      100,
		DeviceTimeout:  60 * time.Second,
		JobsPerMinute:  60,
		AllowedOrigins: []string{"*"},
	},
}

// GetEnvironment returns config for the specified environment, with
// PRINT_* environment variables applied on top.
func GetEnvironment(env string) Environment {
	cfg, ok := environments[env]
	if !ok {
		log.Warn().Str("env", env).Msg("[CONFIG] ⚠️ Unknown environment, defaulting to 'local'")
		cfg = environments["local"]
	}

	if AllowedOrigins != "" {
		cfg.AllowedOrigins = strings.Split(AllowedOrigins, ",")
	}

	cfg.ListenAddr = getEnv("PRINT_LISTEN_ADDR", cfg.ListenAddr)
	cfg.RenderDPI = getEnvInt("PRINT_RENDER_DPI", cfg.RenderDPI)
	cfg.DeviceTimeout = getEnvDuration("PRINT_DEVICE_TIMEOUT", cfg.DeviceTimeout)
	cfg.Verbose = getEnvBool("PRINT_VERBOSE", cfg.Verbose)

	cfg.RenderDPI = clampRenderDPI(cfg.RenderDPI)
	return cfg
}

// Render resolution bounds. One A4 page at MaxRenderDPI is about 140 MB of RGBA.
const (
	DefaultRenderDPI = 100
	MaxRenderDPI     = 600
)

func clampRenderDPI(dpi int) int {
	switch {
	case dpi <= 0:
		return DefaultRenderDPI
	case dpi > MaxRenderDPI:
		log.Warn().Int("dpi", dpi).Int("max", MaxRenderDPI).Msg("[CONFIG] ⚠️ Render DPI too high, clamping")
		return MaxRenderDPI
	}
	return dpi
}

// FileOverrides is the optional YAML settings file. Zero values leave the
// environment untouched.
type FileOverrides struct {
	ListenAddr     string        `yaml:"listen_addr"`
	RenderDPI      int           `yaml:"render_dpi"`
	DeviceTimeout  time.Duration `yaml:"device_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	JobsPerMinute  int           `yaml:"jobs_per_minute"`
	Verbose        *bool         `yaml:"verbose"`
}

// LoadFile reads YAML overrides from path and applies them to env.
func LoadFile(path string, env Environment) (Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return env, fmt.Errorf("read config file: %w", err)
	}
	var o FileOverrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return env, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if o.ListenAddr != "" {
		env.ListenAddr = o.ListenAddr
	}
	if o.RenderDPI > 0 {
		env.RenderDPI = clampRenderDPI(o.RenderDPI)
	}
	if o.DeviceTimeout > 0 {
		env.DeviceTimeout = o.DeviceTimeout
	}
	if o.MaxUploadBytes > 0 {
		env.MaxUploadBytes = o.MaxUploadBytes
	}
	if o.JobsPerMinute > 0 {
		env.JobsPerMinute = o.JobsPerMinute
	}
	if o.Verbose != nil {
		env.Verbose = *o.Verbose
	}
	return env, nil
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
