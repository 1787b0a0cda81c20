package printing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adcondev/print-servicio/internal/raster"
	"github.com/adcondev/print-servicio/internal/spooler"
)

// devicePatterns maps platform failure text to messages for callers.
var devicePatterns = []struct {
	pattern string
	message string
}{
	{"OpenPrinterW", "PRINTER: Cannot connect - check if printer is installed"},
	{"does not exist", "PRINTER: Printer or class does not exist in the spooler"},
	{"access is denied", "DEVICE: Access denied by the print spooler"},
	{"not accepting jobs", "DEVICE: Printer is not accepting jobs"},
	{"StartDocPrinterW", "DEVICE: Spooler rejected the job"},
	{"StartDocW", "DEVICE: Spooler rejected the job"},
	{"WritePrinter", "DEVICE: Failed while sending data to the printer"},
	{"paper settings", "DEVICE: Driver rejected the paper settings"},
	{"no pages", "DOCUMENT: Document has no printable pages"},
	{"waiting for printer", "DEVICE: Printer is busy with another job"},
}

// FriendlyMessage turns a pipeline error into a short message for callers.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	switch {
	case errors.Is(err, ErrNotFound):
		return "PRINTER: Printer not found - check that it is installed"
	case errors.Is(err, ErrEmptyDocument):
		return "VALIDATION: Document is empty"
	case errors.Is(err, ErrUnsupportedType):
		return "VALIDATION: Unsupported " + innerError(errStr)
	case errors.Is(err, raster.ErrDecode):
		return "DOCUMENT: Invalid or corrupted PDF"
	case errors.Is(err, spooler.ErrDeviceTimeout):
		return "DEVICE: Printer did not respond in time"
	}

	for _, m := range devicePatterns {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(m.pattern)) {
			return m.message
		}
	}

	if errors.Is(err, spooler.ErrDevice) {
		return fmt.Sprintf("DEVICE: %s", innerError(errStr))
	}
	return fmt.Sprintf("ERROR: %s", errStr)
}

// innerError keeps the innermost colon-separated segment.
func innerError(errStr string) string {
	parts := strings.Split(errStr, ": ")
	return parts[len(parts)-1]
}
