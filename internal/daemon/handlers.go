package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/config"
	"github.com/adcondev/print-servicio/internal/printing"
	"github.com/adcondev/print-servicio/internal/spooler"
)

// PrintService is the pipeline surface the HTTP API drives.
type PrintService interface {
	ListPrinters(ctx context.Context) ([]spooler.Printer, error)
	Submit(ctx context.Context, req printing.PrintJobRequest) printing.PrintResult
	Stats() printing.Statistics
}

// multipartMemory is the in-memory part of a parsed upload; the rest spills to disk.
const multipartMemory = 8 << 20

// API serves the HTTP routes.
type API struct {
	Service        PrintService
	Discovery      *PrinterDiscovery
	WebSocket      http.HandlerFunc
	Clients        func() int
	Protect        func(http.Handler) http.Handler
	MaxUploadBytes int64
	StartTime      time.Time
}

// Routes builds the service mux.
func (a *API) Routes() http.Handler {
	protect := a.Protect
	if protect == nil {
		protect = func(h http.Handler) http.Handler { return h }
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /printers", a.handlePrinters)
	mux.Handle("POST /printers/{id}/print", protect(http.HandlerFunc(a.handlePrint)))
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	if a.WebSocket != nil {
		// WS is public; tokens are checked per print message.
		mux.HandleFunc("GET /ws", a.WebSocket)
	}
	return withRequestLog(mux)
}

func (a *API) handlePrinters(w http.ResponseWriter, r *http.Request) {
	printers, err := a.Service.ListPrinters(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"success": false,
			"message": printing.FriendlyMessage(err),
		})
		return
	}
	if printers == nil {
		printers = []spooler.Printer{}
	}
	writeJSON(w, http.StatusOK, printers)
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResult(w, http.StatusRequestEntityTooLarge, "VALIDATION: Document exceeds the upload limit")
			return
		}
		writeResult(w, http.StatusBadRequest, "VALIDATION: Expected a multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	document, err := readUpload(r)
	if err != nil {
		writeResult(w, http.StatusBadRequest, "VALIDATION: "+err.Error())
		return
	}

	copies := 1
	if v := r.FormValue("copies"); v != "" {
		copies, err = strconv.Atoi(v)
		if err != nil {
			writeResult(w, http.StatusBadRequest, "VALIDATION: 'copies' must be an integer")
			return
		}
	}

	req, err := printing.NewRequest(r.PathValue("id"), r.FormValue("document_type"), r.FormValue("paper_format"), copies, document)
	if err != nil {
		writeResult(w, http.StatusBadRequest, printing.FriendlyMessage(err))
		return
	}

	log.Info().Str("request_id", RequestIDFromContext(r.Context())).Str("printer", req.PrinterID).
		Str("type", string(req.Type)).Int("bytes", len(req.Document)).Msg("[HTTP] 📥 Print request received")

	result := a.Service.Submit(r.Context(), req)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// readUpload returns the bytes of the "file" part.
func readUpload(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("field 'file' is required")
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "ok",
		Pipeline: a.Service.Stats(),
		Build: BuildInfo{
			Env:     config.BuildEnvironment,
			Date:    config.BuildDate,
			Time:    config.BuildTime,
			Service: config.ServiceName,
		},
		Uptime: int(time.Since(a.StartTime).Seconds()),
	}
	if a.Discovery != nil {
		response.Printers = a.Discovery.GetSummary(r.Context())
	}
	if a.Clients != nil {
		response.Clients = a.Clients()
	}

	if response.Printers.Status == "error" {
		response.Status = "degraded"
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, response)
}

func writeResult(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, printing.PrintResult{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("[HTTP] ⚠️ Failed to encode response")
	}
}
