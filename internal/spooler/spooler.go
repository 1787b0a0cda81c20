// Package spooler talks to the operating system's print subsystem: printer
// enumeration, raw pass-through jobs and driver-rendered paged jobs.
package spooler

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adcondev/print-servicio/internal/paper"
)

var (
	// ErrDevice wraps every failure reported by a device channel.
	ErrDevice = errors.New("device error")
	// ErrDeviceTimeout is returned when a device call exceeds its time budget.
	ErrDeviceTimeout = errors.New("device timeout")
)

// Printer is a snapshot of one installed printer.
type Printer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// PageSource yields rendered pages in order; Next returns io.EOF when done.
type PageSource interface {
	Next() (image.Image, error)
}

// Catalog enumerates installed printers. Every call re-queries the OS.
type Catalog interface {
	List(ctx context.Context) ([]Printer, error)
}

// RawWriter sends an opaque byte stream to a printer without driver rendering.
type RawWriter interface {
	WriteRaw(ctx context.Context, printerID string, data []byte, copies int) (jobID string, err error)
}

// Session drives the printer driver page by page.
type Session interface {
	Run(ctx context.Context, printerID string, copies int, format paper.Format, pages PageSource) (jobID string, err error)
}

// Backend is the full capability set of a platform back end.
type Backend interface {
	Catalog
	RawWriter
	Session
}

// Options configures a platform back end.
type Options struct {
	// DPI is the resolution pages are rendered at; paper sizes scale from 100 DPI.
	DPI int
	// Timeout bounds each device-channel step.
	Timeout time.Duration
	// TempDir hosts staged files; empty means os.TempDir().
	TempDir string
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

// Lookup finds printerID in the current catalog, ignoring case.
func Lookup(ctx context.Context, c Catalog, printerID string) (Printer, bool, error) {
	printers, err := c.List(ctx)
	if err != nil {
		return Printer{}, false, err
	}
	for _, p := range printers {
		if strings.EqualFold(p.ID, printerID) {
			return p, true, nil
		}
	}
	return Printer{}, false, nil
}

// Exists reports whether printerID is currently installed.
func Exists(ctx context.Context, c Catalog, printerID string) (bool, error) {
	_, ok, err := Lookup(ctx, c, printerID)
	return ok, err
}

// newJobToken returns an 8-character correlation token for jobs whose
// platform does not report a native id. Collisions are possible.
func newJobToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func clampCopies(copies, ceiling int) int {
	if copies < 1 {
		return 1
	}
	if ceiling > 0 && copies > ceiling {
		return ceiling
	}
	return copies
}
