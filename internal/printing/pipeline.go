package printing

import (
	"context"
	"fmt"
	"image"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/paper"
	"github.com/adcondev/print-servicio/internal/raster"
	"github.com/adcondev/print-servicio/internal/spooler"
)

// Document is a decoded PDF whose pages are rendered on demand.
type Document interface {
	spooler.PageSource
	Close() error
}

// Rasterizer decodes a PDF into pages rendered onto width×height canvases.
type Rasterizer func(data []byte, width, height int) (Document, error)

// DecodePDF is the MuPDF-backed Rasterizer.
func DecodePDF(data []byte, width, height int) (Document, error) {
	pages, err := raster.Decode(data, width, height)
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// Config holds pipeline settings.
type Config struct {
	// DPI is the rasterization resolution; paper sizes scale from 100 DPI.
	DPI int
}

// Pipeline validates print requests and dispatches them to a platform
// back end. Each Submit runs synchronously on the caller's goroutine.
type Pipeline struct {
	backend   spooler.Backend
	rasterize Rasterizer
	locks     *PrinterLocks
	dpi       int

	mu            sync.Mutex
	jobsProcessed int64
	jobsFailed    int64
	lastJobTime   time.Time
}

// NewPipeline creates a pipeline over backend.
func NewPipeline(backend spooler.Backend, rasterize Rasterizer, cfg Config) *Pipeline {
	if cfg.DPI <= 0 {
		cfg.DPI = 100
	}
	if rasterize == nil {
		rasterize = DecodePDF
	}
	return &Pipeline{
		backend:   backend,
		rasterize: rasterize,
		locks:     NewPrinterLocks(),
		dpi:       cfg.DPI,
	}
}

// ListPrinters returns a fresh snapshot of installed printers.
func (p *Pipeline) ListPrinters(ctx context.Context) ([]spooler.Printer, error) {
	return p.backend.List(ctx)
}

// PrinterExists re-enumerates printers and matches printerID ignoring case.
func (p *Pipeline) PrinterExists(ctx context.Context, printerID string) bool {
	_, ok, err := spooler.Lookup(ctx, p.backend, printerID)
	if err != nil {
		log.Warn().Err(err).Str("printer", printerID).Msg("[PIPELINE] ⚠️ Printer lookup failed")
	}
	return ok
}

// Submit runs one print request end to end. Failures of any kind are
// reported in the result; Submit never panics or returns an error.
func (p *Pipeline) Submit(ctx context.Context, req PrintJobRequest) PrintResult {
	start := time.Now()
	typeLabel := strings.ToLower(string(req.Type))
	if !req.Type.Valid() {
		typeLabel = "unknown"
	}
	jobLog := log.With().Str("printer", req.PrinterID).Str("type", string(req.Type)).Logger()

	jobID, err := p.submit(ctx, req)
	duration := time.Since(start)

	p.mu.Lock()
	p.lastJobTime = time.Now()
	if err != nil {
		p.jobsFailed++
	} else {
		p.jobsProcessed++
	}
	p.mu.Unlock()
	JobDuration.WithLabelValues(typeLabel).Observe(duration.Seconds())

	if err != nil {
		JobsTotal.WithLabelValues(typeLabel, "error").Inc()
		jobLog.Error().Err(err).Dur("duration", duration).Msg("[PIPELINE] ❌ Print job FAILED")
		return failure(FriendlyMessage(err))
	}

	JobsTotal.WithLabelValues(typeLabel, "success").Inc()
	jobLog.Info().Str("job_id", jobID).Dur("duration", duration).Msg("[PIPELINE] ✅ Print job submitted")
	return PrintResult{
		Success: true,
		JobID:   jobID,
		Message: fmt.Sprintf("Print completed in %v", duration.Round(time.Millisecond)),
	}
}

func (p *Pipeline) submit(ctx context.Context, req PrintJobRequest) (jobID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic recovered: %v", spooler.ErrDevice, r)
			log.Error().Str("printer", req.PrinterID).Str("stack", string(debug.Stack())).
				Msgf("[PIPELINE] 💥 Panic while printing: %v", r)
		}
	}()

	printer, err := p.validate(ctx, req)
	if err != nil {
		return "", err
	}

	release, err := p.locks.Acquire(ctx, printer.ID)
	if err != nil {
		return "", fmt.Errorf("%w: waiting for printer: %v", spooler.ErrDevice, err)
	}
	calls := spooler.NewDeviceCalls()
	ctx = spooler.WithDeviceCalls(ctx, calls)
	defer p.releaseWhenIdle(printer.ID, calls, release)

	copies := req.Copies
	if copies < 1 {
		copies = 1
	}

	log.Debug().Str("printer", printer.ID).Str("type", string(req.Type)).Int("copies", copies).
		Msg("[PIPELINE] 🖨️ Dispatching job")

	switch req.Type {
	case ZPL:
		jobID, err = p.backend.WriteRaw(ctx, printer.ID, req.Document, copies)
	case PDF:
		jobID, err = p.printPDF(ctx, printer.ID, req.Paper, req.Document, copies)
	}
	if err != nil {
		return "", err
	}
	if jobID == "" {
		jobID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return jobID, nil
}

// releaseWhenIdle frees the printer once no device call for this job is
// still running. A call abandoned after a timeout keeps the printer locked
// until the driver returns.
func (p *Pipeline) releaseWhenIdle(printerID string, calls *spooler.DeviceCalls, release func()) {
	if !calls.Busy() {
		release()
		return
	}
	log.Warn().Str("printer", printerID).Msg("[PIPELINE] ⏳ Device call still running; printer stays locked")
	go func() {
		<-calls.Idle()
		release()
		log.Info().Str("printer", printerID).Msg("[PIPELINE] 🔓 Abandoned device call finished; printer released")
	}()
}

// validate runs the checks that need no device I/O first, then confirms
// the printer is installed.
func (p *Pipeline) validate(ctx context.Context, req PrintJobRequest) (spooler.Printer, error) {
	if len(req.Document) == 0 {
		return spooler.Printer{}, ErrEmptyDocument
	}
	if !req.Type.Valid() {
		return spooler.Printer{}, fmt.Errorf("%w: document type %q", ErrUnsupportedType, req.Type)
	}
	if req.Type == PDF && !req.Paper.Valid() {
		return spooler.Printer{}, fmt.Errorf("%w: paper format %q", ErrUnsupportedType, req.Paper)
	}

	printer, ok, err := spooler.Lookup(ctx, p.backend, req.PrinterID)
	if err != nil {
		return spooler.Printer{}, fmt.Errorf("%w: enumerate printers: %v", spooler.ErrDevice, err)
	}
	if !ok {
		return spooler.Printer{}, fmt.Errorf("%w: %q", ErrNotFound, req.PrinterID)
	}
	return printer, nil
}

func (p *Pipeline) printPDF(ctx context.Context, printerID string, format paper.Format, data []byte, copies int) (string, error) {
	size := paper.Dimensions(format).AtDPI(p.dpi)
	doc, err := p.rasterize(data, size.Width, size.Height)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := doc.Close(); err != nil {
			log.Warn().Err(err).Msg("[PIPELINE] ⚠️ Error closing document")
		}
	}()

	return p.backend.Run(ctx, printerID, copies, format, &countedPages{src: doc})
}

// countedPages feeds the pages metric.
type countedPages struct {
	src spooler.PageSource
}

func (c *countedPages) Next() (image.Image, error) {
	img, err := c.src.Next()
	if err == nil {
		PagesTotal.Inc()
	}
	return img, err
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Statistics{
		JobsProcessed: p.jobsProcessed,
		JobsFailed:    p.jobsFailed,
		LastJobTime:   p.lastJobTime,
	}
}

// Statistics holds pipeline runtime statistics.
type Statistics struct {
	JobsProcessed int64     `json:"jobs_processed"`
	JobsFailed    int64     `json:"jobs_failed"`
	LastJobTime   time.Time `json:"last_job_time,omitempty"`
}
