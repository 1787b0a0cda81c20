//go:build windows

package spooler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"

	"github.com/adcondev/print-servicio/internal/paper"
	"github.com/adcondev/print-servicio/internal/raster"
)

const (
	docName        = "Print Servicio"
	rawDatatype    = "RAW"
	paperTolerance = 20 // tenths of a millimetre
	devModeCopies  = math.MaxInt16
)

// Windows is the spooler/GDI back end. Raw jobs are submitted once per copy;
// paged jobs carry the copy count in the DEVMODE.
type Windows struct {
	opts Options
	api  spoolerAPI
}

// New returns the back end for the host OS.
func New(opts Options) Backend {
	return NewWindows(opts)
}

// NewWindows creates the Windows back end.
func NewWindows(opts Options) *Windows {
	return &Windows{opts: opts.withDefaults(), api: nativeAPI}
}

// List enumerates local and connected printers.
func (w *Windows) List(ctx context.Context) ([]Printer, error) {
	names := make(chan []string, 1)
	err := Bounded(ctx, w.opts.Timeout, func(func()) error {
		n, err := w.api.enumPrinters()
		names <- n
		return err
	})
	if err != nil {
		return nil, deviceErr("enumerate printers", err)
	}
	found := <-names

	def, err := w.api.defaultPrinter()
	if err != nil {
		log.Warn().Err(err).Msg("[PRINTERS] ⚠️ Could not detect default printer")
	}

	printers := make([]Printer, 0, len(found))
	for _, n := range found {
		printers = append(printers, Printer{ID: n, Name: n, IsDefault: def != "" && strings.EqualFold(n, def)})
	}
	return printers, nil
}

// WriteRaw sends data as copies independent RAW jobs. The id of the first
// job is reported.
func (w *Windows) WriteRaw(ctx context.Context, printerID string, data []byte, copies int) (string, error) {
	copies = clampCopies(copies, devModeCopies)

	first := ""
	for i := 0; i < copies; i++ {
		ids := make(chan uint32, 1)
		err := Bounded(ctx, w.opts.Timeout, func(func()) error {
			id, err := w.rawJob(printerID, data)
			ids <- id
			return err
		})
		if err != nil {
			return "", deviceErr(fmt.Sprintf("raw copy %d/%d", i+1, copies), err)
		}
		if id := <-ids; i == 0 {
			first = strconv.FormatUint(uint64(id), 10)
		}
	}
	return first, nil
}

// rawJob opens the printer, writes one RAW document and releases the handle.
// A job that fails after it started is aborted.
func (w *Windows) rawJob(printerID string, data []byte) (uint32, error) {
	api := w.api
	h, err := api.openPrinter(printerID)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := api.closePrinter(h); err != nil {
			log.Warn().Err(err).Str("printer", printerID).Msg("[SPOOLER] ⚠️ Error closing printer")
		}
	}()

	jobID, err := api.startDocPrinter(h, docName, rawDatatype)
	if err != nil {
		return 0, err
	}
	if err = api.startPagePrinter(h); err == nil {
		if err = api.writePrinter(h, data); err == nil {
			err = api.endPagePrinter(h)
		}
	}
	if err == nil {
		err = api.endDocPrinter(h)
	}
	if err != nil {
		api.abortPrinter(h)
		return 0, err
	}
	return jobID, nil
}

// Run prints pages through the driver. The whole session runs on a device
// goroutine; each page counts as progress for the timeout.
func (w *Windows) Run(ctx context.Context, printerID string, copies int, format paper.Format, pages PageSource) (string, error) {
	guarded := newGuardedPages(pages)
	ids := make(chan int32, 1)
	err := Bounded(ctx, w.opts.Timeout, func(progress func()) error {
		guarded.progress = progress
		id, err := w.session(printerID, copies, format, guarded, progress)
		ids <- id
		return err
	})
	if err != nil {
		guarded.detach()
		return "", err
	}
	return strconv.Itoa(int(<-ids)), nil
}

func (w *Windows) session(printerID string, copies int, format paper.Format, pages PageSource, progress func()) (int32, error) {
	api := w.api
	name, err := windows.UTF16PtrFromString(printerID)
	if err != nil {
		return 0, deviceErr("printer name", err)
	}
	h, err := api.openPrinter(printerID)
	if err != nil {
		return 0, deviceErr("bind", err)
	}
	defer func() { _ = api.closePrinter(h) }()

	buf, err := api.documentProperties(h, name)
	if err != nil {
		return 0, deviceErr("bind", err)
	}
	dm := asDevMode(buf)
	w.applyPaper(dm, name, format)
	dm.Copies = int16(clampCopies(copies, w.copyCeiling(name)))
	dm.Fields |= dmFieldCopies
	if err := api.mergeDocumentProperties(h, name, buf); err != nil {
		return 0, deviceErr("paper settings", err)
	}

	hdc, err := api.createDC(name, buf)
	if err != nil {
		return 0, deviceErr("bind", err)
	}
	defer api.deleteDC(hdc)

	jobID, err := api.startDoc(hdc, docName)
	if err != nil {
		return 0, deviceErr("start document", err)
	}
	committed := false
	defer func() {
		if !committed {
			api.abortDoc(hdc)
		}
	}()
	progress()

	printed := 0
	for i := 0; ; i++ {
		img, err := pages.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("page %d: %w", i, err)
		}
		if err := api.startPage(hdc); err != nil {
			return 0, deviceErr(fmt.Sprintf("page %d", i), err)
		}
		dstW, dstH := api.deviceCaps(hdc, capHorzRes), api.deviceCaps(hdc, capVertRes)
		b := img.Bounds()
		rect := raster.Place(b.Dx(), b.Dy(), dstW, dstH).Rect(dstW, dstH)
		if err := api.stretchBitmap(hdc, rect, img); err != nil {
			return 0, deviceErr(fmt.Sprintf("page %d", i), err)
		}
		if err := api.endPage(hdc); err != nil {
			return 0, deviceErr(fmt.Sprintf("page %d", i), err)
		}
		printed++
		progress()
	}
	if printed == 0 {
		return 0, fmt.Errorf("%w: document produced no pages", ErrDevice)
	}
	if err := api.endDoc(hdc); err != nil {
		return 0, deviceErr("commit", err)
	}
	committed = true
	return jobID, nil
}

// applyPaper selects the driver paper closest to format, or a custom size
// when none is within tolerance.
func (w *Windows) applyPaper(dm *devMode, name *uint16, format paper.Format) {
	ids, native := w.api.nativePapers(name)
	sizes := make([]paper.Size, len(native))
	for i, s := range native {
		sizes[i] = paper.Size{Width: int(s.X), Height: int(s.Y)}
	}

	choice := selectPaper(format, ids, sizes, paperTolerance)
	if !choice.Custom {
		dm.PaperSize = int16(choice.ID)
		dm.Fields |= dmFieldPaperSize
		dm.Fields &^= dmFieldPaperWidth | dmFieldPaperLength
		log.Debug().Str("format", string(format)).Uint16("paper_id", choice.ID).Msg("[SPOOLER] 📄 Native paper matched")
		return
	}

	dm.PaperSize = dmPaperUser
	dm.PaperWidth = int16(choice.Size.Width)
	dm.PaperLength = int16(choice.Size.Height)
	dm.Fields |= dmFieldPaperSize | dmFieldPaperWidth | dmFieldPaperLength
	log.Debug().Str("format", string(format)).Msg("[SPOOLER] 📄 Using custom paper size")
}

func (w *Windows) copyCeiling(name *uint16) int {
	n := w.api.maxDriverCopies(name)
	if n <= 0 || n > devModeCopies {
		return devModeCopies
	}
	return n
}

func deviceErr(stage string, err error) error {
	if errors.Is(err, ErrDevice) || errors.Is(err, ErrDeviceTimeout) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrDevice, stage, err)
}
