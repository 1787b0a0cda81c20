//go:build windows

package spooler

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"

	"github.com/adcondev/print-servicio/internal/paper"
	"github.com/adcondev/print-servicio/internal/raster"
)

const (
	fakePrinter windows.Handle = 0x10
	fakeDC      windows.Handle = 0x20
)

// fakeWinspool stands in for winspool.drv and gdi32.dll and records every
// adapter call in order.
type fakeWinspool struct {
	mu    sync.Mutex
	calls []string
	jobs  uint32

	printers      []string
	defaultErr    error
	writeErr      error
	stretchErr    error
	papers        []uint16
	paperSizes    []point
	devmode       []byte
	stretchedInto []image.Rectangle
}

func (f *fakeWinspool) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeWinspool) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeWinspool) sequence() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeWinspool) devMode() *devMode {
	return asDevMode(f.devmode)
}

func (f *fakeWinspool) api() spoolerAPI {
	return spoolerAPI{
		enumPrinters: func() ([]string, error) {
			f.record("enumPrinters")
			return f.printers, nil
		},
		defaultPrinter: func() (string, error) {
			f.record("defaultPrinter")
			if f.defaultErr != nil {
				return "", f.defaultErr
			}
			return "Laser", nil
		},

		openPrinter: func(string) (windows.Handle, error) {
			f.record("openPrinter")
			return fakePrinter, nil
		},
		closePrinter: func(windows.Handle) error {
			f.record("closePrinter")
			return nil
		},
		startDocPrinter: func(_ windows.Handle, _, datatype string) (uint32, error) {
			f.record("startDocPrinter:" + datatype)
			f.mu.Lock()
			defer f.mu.Unlock()
			f.jobs++
			return 100 + f.jobs, nil
		},
		startPagePrinter: func(windows.Handle) error {
			f.record("startPagePrinter")
			return nil
		},
		writePrinter: func(windows.Handle, []byte) error {
			f.record("writePrinter")
			return f.writeErr
		},
		endPagePrinter: func(windows.Handle) error {
			f.record("endPagePrinter")
			return nil
		},
		endDocPrinter: func(windows.Handle) error {
			f.record("endDocPrinter")
			return nil
		},
		abortPrinter: func(windows.Handle) {
			f.record("abortPrinter")
		},

		documentProperties: func(windows.Handle, *uint16) ([]byte, error) {
			f.record("documentProperties")
			f.devmode = make([]byte, unsafe.Sizeof(devMode{}))
			return f.devmode, nil
		},
		mergeDocumentProperties: func(windows.Handle, *uint16, []byte) error {
			f.record("mergeDocumentProperties")
			return nil
		},
		nativePapers: func(*uint16) ([]uint16, []point) {
			return f.papers, f.paperSizes
		},
		maxDriverCopies: func(*uint16) int { return 0 },

		createDC: func(*uint16, []byte) (windows.Handle, error) {
			f.record("createDC")
			return fakeDC, nil
		},
		deleteDC: func(windows.Handle) {
			f.record("deleteDC")
		},
		startDoc: func(windows.Handle, string) (int32, error) {
			f.record("startDoc")
			return 77, nil
		},
		startPage: func(windows.Handle) error {
			f.record("startPage")
			return nil
		},
		stretchBitmap: func(_ windows.Handle, dst image.Rectangle, _ image.Image) error {
			f.record("stretchBitmap")
			f.mu.Lock()
			defer f.mu.Unlock()
			f.stretchedInto = append(f.stretchedInto, dst)
			return f.stretchErr
		},
		endPage: func(windows.Handle) error {
			f.record("endPage")
			return nil
		},
		endDoc: func(windows.Handle) error {
			f.record("endDoc")
			return nil
		},
		abortDoc: func(windows.Handle) {
			f.record("abortDoc")
		},
		deviceCaps: func(_ windows.Handle, index int) int {
			if index == capHorzRes {
				return 600
			}
			return 780
		},
	}
}

func newTestWindows(f *fakeWinspool) *Windows {
	w := NewWindows(Options{DPI: 100, Timeout: time.Second})
	w.api = f.api()
	return w
}

// pageList yields the given pages and then fails with err, or io.EOF.
type pageList struct {
	pages []image.Image
	err   error
}

func (p *pageList) Next() (image.Image, error) {
	if len(p.pages) == 0 {
		if p.err != nil {
			return nil, p.err
		}
		return nil, io.EOF
	}
	img := p.pages[0]
	p.pages = p.pages[1:]
	return img, nil
}

func letterPage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 850, 1100))
}

func TestWindowsListDefaultFailureIsNotFatal(t *testing.T) {
	f := &fakeWinspool{printers: []string{"Zebra", "Laser"}}
	w := newTestWindows(f)

	printers, err := w.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Printer{{ID: "Zebra", Name: "Zebra"}, {ID: "Laser", Name: "Laser", IsDefault: true}}, printers)

	f.defaultErr = errors.New("GetDefaultPrinterW: no default printer")
	printers, err = w.List(context.Background())
	require.NoError(t, err)
	for _, p := range printers {
		assert.False(t, p.IsDefault, p.ID)
	}
}

func TestWindowsWriteRawOneJobPerCopy(t *testing.T) {
	f := &fakeWinspool{}
	w := newTestWindows(f)

	jobID, err := w.WriteRaw(context.Background(), "Zebra", []byte("^XA^XZ"), 3)
	require.NoError(t, err)
	assert.Equal(t, "101", jobID)

	assert.Equal(t, 3, f.count("startDocPrinter:RAW"))
	assert.Equal(t, 3, f.count("writePrinter"))
	assert.Equal(t, 3, f.count("endDocPrinter"))
	assert.Equal(t, 3, f.count("closePrinter"))
	assert.Zero(t, f.count("abortPrinter"))
}

func TestWindowsWriteRawAbortsFailedWrite(t *testing.T) {
	f := &fakeWinspool{writeErr: errors.New("WritePrinter: The device is not ready.")}
	w := newTestWindows(f)

	jobID, err := w.WriteRaw(context.Background(), "Zebra", []byte("^XA^XZ"), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Contains(t, err.Error(), "raw copy 1/2")
	assert.Empty(t, jobID)

	assert.Equal(t, []string{
		"openPrinter",
		"startDocPrinter:RAW",
		"startPagePrinter",
		"writePrinter",
		"abortPrinter",
		"closePrinter",
	}, f.sequence())
}

func TestWindowsRunCommitsPlacedPages(t *testing.T) {
	f := &fakeWinspool{
		papers:     []uint16{1, 9},
		paperSizes: []point{{X: 2159, Y: 2794}, {X: 2100, Y: 2970}},
	}
	w := newTestWindows(f)

	pages := &pageList{pages: []image.Image{letterPage(), letterPage()}}
	jobID, err := w.Run(context.Background(), "Laser", 2, paper.Letter, pages)
	require.NoError(t, err)
	assert.Equal(t, "77", jobID)

	assert.Equal(t, 2, f.count("startPage"))
	assert.Equal(t, 2, f.count("endPage"))
	assert.Equal(t, 1, f.count("endDoc"))
	assert.Zero(t, f.count("abortDoc"))
	assert.Equal(t, 1, f.count("deleteDC"))
	assert.Equal(t, 1, f.count("closePrinter"))

	dm := f.devMode()
	assert.Equal(t, int16(1), dm.PaperSize)
	assert.Equal(t, int16(2), dm.Copies)
	assert.NotZero(t, dm.Fields&dmFieldCopies)
	assert.Zero(t, dm.Fields&(dmFieldPaperWidth|dmFieldPaperLength))

	want := raster.Place(850, 1100, 600, 780).Rect(600, 780)
	assert.Equal(t, []image.Rectangle{want, want}, f.stretchedInto)
}

func TestWindowsRunUsesCustomPaperWithoutNativeMatch(t *testing.T) {
	f := &fakeWinspool{
		papers:     []uint16{1},
		paperSizes: []point{{X: 2159, Y: 2794}},
	}
	w := newTestWindows(f)

	_, err := w.Run(context.Background(), "Zebra", 1, paper.Label4x6, &pageList{pages: []image.Image{letterPage()}})
	require.NoError(t, err)

	dm := f.devMode()
	assert.Equal(t, int16(dmPaperUser), dm.PaperSize)
	assert.Equal(t, int16(1016), dm.PaperWidth)
	assert.Equal(t, int16(1524), dm.PaperLength)
	assert.Equal(t, uint32(dmFieldPaperSize|dmFieldPaperWidth|dmFieldPaperLength),
		dm.Fields&(dmFieldPaperSize|dmFieldPaperWidth|dmFieldPaperLength))
}

func TestWindowsRunAbortsOnPageFailure(t *testing.T) {
	f := &fakeWinspool{}
	w := newTestWindows(f)

	pages := &pageList{pages: []image.Image{letterPage()}, err: errors.New("render page 1")}
	_, err := w.Run(context.Background(), "Laser", 1, paper.Letter, pages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1")

	assert.Equal(t, 1, f.count("abortDoc"))
	assert.Zero(t, f.count("endDoc"))
	assert.Equal(t, 1, f.count("deleteDC"))
	assert.Equal(t, 1, f.count("closePrinter"))
}

func TestWindowsRunAbortsOnDrawFailure(t *testing.T) {
	f := &fakeWinspool{stretchErr: errors.New("StretchDIBits failed")}
	w := newTestWindows(f)

	_, err := w.Run(context.Background(), "Laser", 1, paper.Letter, &pageList{pages: []image.Image{letterPage()}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, 1, f.count("abortDoc"))
	assert.Zero(t, f.count("endPage"))
	assert.Zero(t, f.count("endDoc"))
}

func TestWindowsRunAbortsWithoutPages(t *testing.T) {
	f := &fakeWinspool{}
	w := newTestWindows(f)

	_, err := w.Run(context.Background(), "Laser", 1, paper.Letter, &pageList{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Contains(t, err.Error(), "no pages")
	assert.Equal(t, 1, f.count("abortDoc"))
	assert.Zero(t, f.count("endDoc"))
}

func TestToBGRA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Pix = []byte{0x10, 0x20, 0x30, 0xff, 0xaa, 0xbb, 0xcc, 0xff}

	assert.Equal(t, []byte{0x30, 0x20, 0x10, 0, 0xcc, 0xbb, 0xaa, 0}, toBGRA(img))
}
