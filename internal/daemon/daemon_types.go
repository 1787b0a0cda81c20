package daemon

import "github.com/adcondev/print-servicio/internal/printing"

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status   string              `json:"status"`
	Printers PrinterSummary      `json:"printers"`
	Pipeline printing.Statistics `json:"pipeline"`
	Clients  int                 `json:"ws_clients"`
	Build    BuildInfo           `json:"build"`
	Uptime   int                 `json:"uptime_seconds"`
}

// PrinterSummary provides a lightweight overview for health checks.
type PrinterSummary struct {
	Status        string `json:"status"` // "ok", "warning", "error"
	DetectedCount int    `json:"detected_count"`
	DefaultName   string `json:"default_name,omitempty"`
}

// BuildInfo describes the running build.
type BuildInfo struct {
	Env     string `json:"env"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Service string `json:"service"`
}
