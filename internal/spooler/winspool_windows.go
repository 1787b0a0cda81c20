//go:build windows

package spooler

import (
	"errors"
	"fmt"
	"image"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Narrow adapters over winspool.drv and gdi32.dll. Handles never leave the
// back end and every acquisition is paired with a release by the caller.

// spoolerAPI is the adapter set the Windows back end drives.
type spoolerAPI struct {
	enumPrinters   func() ([]string, error)
	defaultPrinter func() (string, error)

	openPrinter      func(name string) (windows.Handle, error)
	closePrinter     func(h windows.Handle) error
	startDocPrinter  func(h windows.Handle, docName, datatype string) (uint32, error)
	startPagePrinter func(h windows.Handle) error
	writePrinter     func(h windows.Handle, data []byte) error
	endPagePrinter   func(h windows.Handle) error
	endDocPrinter    func(h windows.Handle) error
	abortPrinter     func(h windows.Handle)

	documentProperties      func(h windows.Handle, name *uint16) ([]byte, error)
	mergeDocumentProperties func(h windows.Handle, name *uint16, buf []byte) error
	nativePapers            func(name *uint16) ([]uint16, []point)
	maxDriverCopies         func(name *uint16) int

	createDC      func(name *uint16, dm []byte) (windows.Handle, error)
	deleteDC      func(hdc windows.Handle)
	startDoc      func(hdc windows.Handle, docName string) (int32, error)
	startPage     func(hdc windows.Handle) error
	stretchBitmap func(hdc windows.Handle, dst image.Rectangle, img image.Image) error
	endPage       func(hdc windows.Handle) error
	endDoc        func(hdc windows.Handle) error
	abortDoc      func(hdc windows.Handle)
	deviceCaps    func(hdc windows.Handle, index int) int
}

var nativeAPI = spoolerAPI{
	enumPrinters:   enumPrinters,
	defaultPrinter: defaultPrinter,

	openPrinter:      openPrinter,
	closePrinter:     closePrinter,
	startDocPrinter:  startDocPrinter,
	startPagePrinter: startPagePrinter,
	writePrinter:     writePrinter,
	endPagePrinter:   endPagePrinter,
	endDocPrinter:    endDocPrinter,
	abortPrinter:     abortPrinter,

	documentProperties:      documentProperties,
	mergeDocumentProperties: mergeDocumentProperties,
	nativePapers:            nativePapers,
	maxDriverCopies:         maxDriverCopies,

	createDC:      createDC,
	deleteDC:      deleteDC,
	startDoc:      startDoc,
	startPage:     startPage,
	stretchBitmap: stretchBitmap,
	endPage:       endPage,
	endDoc:        endDoc,
	abortDoc:      abortDoc,
	deviceCaps:    deviceCaps,
}

var (
	winspool = windows.NewLazySystemDLL("winspool.drv")
	gdi32    = windows.NewLazySystemDLL("gdi32.dll")

	procOpenPrinterW        = winspool.NewProc("OpenPrinterW")
	procClosePrinter        = winspool.NewProc("ClosePrinter")
	procStartDocPrinterW    = winspool.NewProc("StartDocPrinterW")
	procEndDocPrinter       = winspool.NewProc("EndDocPrinter")
	procStartPagePrinter    = winspool.NewProc("StartPagePrinter")
	procEndPagePrinter      = winspool.NewProc("EndPagePrinter")
	procWritePrinter        = winspool.NewProc("WritePrinter")
	procAbortPrinter        = winspool.NewProc("AbortPrinter")
	procEnumPrintersW       = winspool.NewProc("EnumPrintersW")
	procGetDefaultPrinterW  = winspool.NewProc("GetDefaultPrinterW")
	procDocumentPropertiesW = winspool.NewProc("DocumentPropertiesW")
	procDeviceCapabilitiesW = winspool.NewProc("DeviceCapabilitiesW")

	procCreateDCW     = gdi32.NewProc("CreateDCW")
	procDeleteDC      = gdi32.NewProc("DeleteDC")
	procStartDocW     = gdi32.NewProc("StartDocW")
	procEndDoc        = gdi32.NewProc("EndDoc")
	procAbortDoc      = gdi32.NewProc("AbortDoc")
	procStartPage     = gdi32.NewProc("StartPage")
	procEndPage       = gdi32.NewProc("EndPage")
	procGetDeviceCaps = gdi32.NewProc("GetDeviceCaps")
	procStretchDIBits = gdi32.NewProc("StretchDIBits")
)

const (
	printerEnumLocal       = 0x2
	printerEnumConnections = 0x4

	dmOutBuffer = 2
	dmInBuffer  = 8
	idOK        = 1

	dmFieldPaperSize   = 0x2
	dmFieldPaperLength = 0x4
	dmFieldPaperWidth  = 0x8
	dmFieldCopies      = 0x100
	dmPaperUser        = 256

	dcPapers    = 2
	dcPaperSize = 3
	dcCopies    = 18

	capHorzRes = 8
	capVertRes = 10

	dibRGBColors = 0
	srcCopy      = 0x00CC0020
	gdiError     = 0xFFFFFFFF
)

type docInfo1 struct {
	DocName    *uint16
	OutputFile *uint16
	Datatype   *uint16
}

type printerInfo4 struct {
	PrinterName *uint16
	ServerName  *uint16
	Attributes  uint32
}

type gdiDocInfo struct {
	Size     int32
	DocName  *uint16
	Output   *uint16
	Datatype *uint16
	Type     uint32
}

// devMode mirrors DEVMODEW. Driver-private bytes follow it in the buffer
// returned by DocumentPropertiesW.
type devMode struct {
	DeviceName       [32]uint16
	SpecVersion      uint16
	DriverVersion    uint16
	Size             uint16
	DriverExtra      uint16
	Fields           uint32
	Orientation      int16
	PaperSize        int16
	PaperLength      int16
	PaperWidth       int16
	Scale            int16
	Copies           int16
	DefaultSource    int16
	PrintQuality     int16
	Color            int16
	Duplex           int16
	YResolution      int16
	TTOption         int16
	Collate          int16
	FormName         [32]uint16
	LogPixels        uint16
	BitsPerPel       uint32
	PelsWidth        uint32
	PelsHeight       uint32
	DisplayFlags     uint32
	DisplayFrequency uint32
	ICMMethod        uint32
	ICMIntent        uint32
	MediaType        uint32
	DitherType       uint32
	Reserved1        uint32
	Reserved2        uint32
	PanningWidth     uint32
	PanningHeight    uint32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type point struct {
	X, Y int32
}

func lastError(op string, e error) error {
	var errno syscall.Errno
	if errors.As(e, &errno) && errno != 0 {
		return fmt.Errorf("%s: %w", op, errno)
	}
	return fmt.Errorf("%s failed", op)
}

func openPrinter(name string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	var h windows.Handle
	r, _, e := procOpenPrinterW.Call(uintptr(unsafe.Pointer(p)), uintptr(unsafe.Pointer(&h)), 0)
	if r == 0 {
		return 0, lastError("OpenPrinterW", e)
	}
	return h, nil
}

func closePrinter(h windows.Handle) error {
	r, _, e := procClosePrinter.Call(uintptr(h))
	if r == 0 {
		return lastError("ClosePrinter", e)
	}
	return nil
}

func startDocPrinter(h windows.Handle, docName, datatype string) (uint32, error) {
	info := docInfo1{
		DocName:  windows.StringToUTF16Ptr(docName),
		Datatype: windows.StringToUTF16Ptr(datatype),
	}
	r, _, e := procStartDocPrinterW.Call(uintptr(h), 1, uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return 0, lastError("StartDocPrinterW", e)
	}
	return uint32(r), nil
}

func endDocPrinter(h windows.Handle) error {
	r, _, e := procEndDocPrinter.Call(uintptr(h))
	if r == 0 {
		return lastError("EndDocPrinter", e)
	}
	return nil
}

func startPagePrinter(h windows.Handle) error {
	r, _, e := procStartPagePrinter.Call(uintptr(h))
	if r == 0 {
		return lastError("StartPagePrinter", e)
	}
	return nil
}

func endPagePrinter(h windows.Handle) error {
	r, _, e := procEndPagePrinter.Call(uintptr(h))
	if r == 0 {
		return lastError("EndPagePrinter", e)
	}
	return nil
}

func abortPrinter(h windows.Handle) {
	_, _, _ = procAbortPrinter.Call(uintptr(h))
}

func writePrinter(h windows.Handle, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var written uint32
	r, _, e := procWritePrinter.Call(uintptr(h), uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)), uintptr(unsafe.Pointer(&written)))
	if r == 0 {
		return lastError("WritePrinter", e)
	}
	if int(written) != len(data) {
		return fmt.Errorf("WritePrinter: short write %d/%d bytes", written, len(data))
	}
	return nil
}

func enumPrinters() ([]string, error) {
	flags := uintptr(printerEnumLocal | printerEnumConnections)
	var needed, returned uint32
	r, _, e := procEnumPrintersW.Call(flags, 0, 4, 0, 0,
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r == 0 && !errors.Is(e, windows.ERROR_INSUFFICIENT_BUFFER) {
		return nil, lastError("EnumPrintersW", e)
	}
	if needed == 0 {
		return nil, nil
	}

	buf := make([]byte, needed)
	r, _, e = procEnumPrintersW.Call(flags, 0, 4, uintptr(unsafe.Pointer(&buf[0])), uintptr(needed),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&returned)))
	if r == 0 {
		return nil, lastError("EnumPrintersW", e)
	}
	if returned == 0 {
		return nil, nil
	}

	infos := unsafe.Slice((*printerInfo4)(unsafe.Pointer(&buf[0])), returned)
	names := make([]string, 0, returned)
	for _, info := range infos {
		names = append(names, windows.UTF16PtrToString(info.PrinterName))
	}
	return names, nil
}

func defaultPrinter() (string, error) {
	var size uint32
	_, _, _ = procGetDefaultPrinterW.Call(0, uintptr(unsafe.Pointer(&size)))
	if size == 0 {
		return "", errors.New("GetDefaultPrinterW: no default printer")
	}
	buf := make([]uint16, size)
	r, _, e := procGetDefaultPrinterW.Call(uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return "", lastError("GetDefaultPrinterW", e)
	}
	return windows.UTF16ToString(buf), nil
}

// documentProperties returns the printer's current DEVMODE buffer.
func documentProperties(h windows.Handle, name *uint16) ([]byte, error) {
	n, _, e := procDocumentPropertiesW.Call(0, uintptr(h), uintptr(unsafe.Pointer(name)), 0, 0, 0)
	if int32(n) <= 0 {
		return nil, lastError("DocumentPropertiesW", e)
	}
	buf := make([]byte, int32(n))
	r, _, e := procDocumentPropertiesW.Call(0, uintptr(h), uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&buf[0])), 0, dmOutBuffer)
	if int32(r) != idOK {
		return nil, lastError("DocumentPropertiesW", e)
	}
	return buf, nil
}

// mergeDocumentProperties lets the driver validate changes made to buf.
func mergeDocumentProperties(h windows.Handle, name *uint16, buf []byte) error {
	r, _, e := procDocumentPropertiesW.Call(0, uintptr(h), uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&buf[0])), dmInBuffer|dmOutBuffer)
	if int32(r) != idOK {
		return lastError("DocumentPropertiesW", e)
	}
	return nil
}

func asDevMode(buf []byte) *devMode {
	return (*devMode)(unsafe.Pointer(&buf[0]))
}

func deviceCapabilities(name *uint16, capability uint16, out unsafe.Pointer) int32 {
	r, _, _ := procDeviceCapabilitiesW.Call(uintptr(unsafe.Pointer(name)), 0, uintptr(capability), uintptr(out), 0)
	return int32(r)
}

// nativePapers returns the driver's paper ids and their sizes in tenths of a millimetre.
func nativePapers(name *uint16) ([]uint16, []point) {
	n := deviceCapabilities(name, dcPapers, nil)
	if n <= 0 {
		return nil, nil
	}
	ids := make([]uint16, n)
	sizes := make([]point, n)
	if deviceCapabilities(name, dcPapers, unsafe.Pointer(&ids[0])) != n ||
		deviceCapabilities(name, dcPaperSize, unsafe.Pointer(&sizes[0])) != n {
		return nil, nil
	}
	return ids, sizes
}

func maxDriverCopies(name *uint16) int {
	return int(deviceCapabilities(name, dcCopies, nil))
}

func createDC(name *uint16, dm []byte) (windows.Handle, error) {
	driver := windows.StringToUTF16Ptr("WINSPOOL")
	r, _, e := procCreateDCW.Call(uintptr(unsafe.Pointer(driver)), uintptr(unsafe.Pointer(name)), 0,
		uintptr(unsafe.Pointer(&dm[0])))
	if r == 0 {
		return 0, lastError("CreateDCW", e)
	}
	return windows.Handle(r), nil
}

func deleteDC(hdc windows.Handle) {
	_, _, _ = procDeleteDC.Call(uintptr(hdc))
}

func startDoc(hdc windows.Handle, docName string) (int32, error) {
	info := gdiDocInfo{DocName: windows.StringToUTF16Ptr(docName)}
	info.Size = int32(unsafe.Sizeof(info))
	r, _, e := procStartDocW.Call(uintptr(hdc), uintptr(unsafe.Pointer(&info)))
	if int32(r) <= 0 {
		return 0, lastError("StartDocW", e)
	}
	return int32(r), nil
}

func gdiCall(op string, proc *windows.LazyProc, hdc windows.Handle) error {
	r, _, e := proc.Call(uintptr(hdc))
	if int32(r) <= 0 {
		return lastError(op, e)
	}
	return nil
}

func endDoc(hdc windows.Handle) error    { return gdiCall("EndDoc", procEndDoc, hdc) }
func startPage(hdc windows.Handle) error { return gdiCall("StartPage", procStartPage, hdc) }
func endPage(hdc windows.Handle) error   { return gdiCall("EndPage", procEndPage, hdc) }

func abortDoc(hdc windows.Handle) {
	_, _, _ = procAbortDoc.Call(uintptr(hdc))
}

func deviceCaps(hdc windows.Handle, index int) int {
	r, _, _ := procGetDeviceCaps.Call(uintptr(hdc), uintptr(index))
	return int(int32(r))
}

// stretchBitmap draws img into dst on the device context.
func stretchBitmap(hdc windows.Handle, dst image.Rectangle, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || dst.Empty() {
		return nil
	}
	bits := toBGRA(img)
	hdr := bitmapInfoHeader{
		Width:    int32(w),
		Height:   -int32(h), // top-down rows
		Planes:   1,
		BitCount: 32,
	}
	hdr.Size = uint32(unsafe.Sizeof(hdr))

	r, _, e := procStretchDIBits.Call(uintptr(hdc),
		uintptr(dst.Min.X), uintptr(dst.Min.Y), uintptr(dst.Dx()), uintptr(dst.Dy()),
		0, 0, uintptr(w), uintptr(h),
		uintptr(unsafe.Pointer(&bits[0])), uintptr(unsafe.Pointer(&hdr)),
		dibRGBColors, srcCopy)
	if r == 0 || uint32(r) == gdiError {
		return lastError("StretchDIBits", e)
	}
	return nil
}

// toBGRA converts img into 32-bit top-down BGRA rows.
func toBGRA(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, byte(bl>>8), byte(g>>8), byte(r>>8), 0)
		}
	}
	return out
}
