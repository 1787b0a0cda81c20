//go:build !windows

package spooler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/adcondev/print-servicio/internal/paper"
	"github.com/adcondev/print-servicio/internal/raster"
)

// maxCUPSCopies is the default MaxCopies of cupsd.conf.
const maxCUPSCopies = 9999

var requestIDPattern = regexp.MustCompile(`request id is (\S+)`)

// runner executes an external command and returns its combined output.
type runner func(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Stdin = stdin
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// CUPS is the POSIX back end. It drives lpstat and lp.
type CUPS struct {
	opts Options
	run  runner
}

// New returns the back end for the host OS.
func New(opts Options) Backend {
	return NewCUPS(opts)
}

// NewCUPS creates a CUPS back end using the system lp tools.
func NewCUPS(opts Options) *CUPS {
	return &CUPS{opts: opts.withDefaults(), run: execRunner}
}

// List enumerates CUPS destinations and marks the system default.
func (c *CUPS) List(ctx context.Context) ([]Printer, error) {
	out, err := c.command(ctx, nil, "lpstat", "-p")
	if err != nil {
		if bytes.Contains(out, []byte("No destinations added")) {
			return []Printer{}, nil
		}
		return nil, err
	}
	names := parsePrinterLines(out)

	def := ""
	if out, err := c.command(ctx, nil, "lpstat", "-d"); err != nil {
		log.Warn().Err(err).Msg("[PRINTERS] ⚠️ Could not detect default printer")
	} else {
		def = parseDefaultDestination(out)
	}

	printers := make([]Printer, 0, len(names))
	for _, n := range names {
		printers = append(printers, Printer{ID: n, Name: n, IsDefault: n == def})
	}
	return printers, nil
}

// WriteRaw submits data as a single raw job carrying the copy count.
func (c *CUPS) WriteRaw(ctx context.Context, printerID string, data []byte, copies int) (string, error) {
	copies = clampCopies(copies, maxCUPSCopies)
	out, err := c.command(ctx, bytes.NewReader(data),
		"lp", "-d", printerID, "-o", "raw", "-n", strconv.Itoa(copies))
	if err != nil {
		return "", err
	}
	return jobIDFromOutput(out), nil
}

// Run stages every placed page as a PNG and submits them as one job. Pages
// are rendered and written one at a time.
func (c *CUPS) Run(ctx context.Context, printerID string, copies int, format paper.Format, pages PageSource) (string, error) {
	copies = clampCopies(copies, maxCUPSCopies)

	dir, err := os.MkdirTemp(c.opts.TempDir, "print-*")
	if err != nil {
		return "", fmt.Errorf("%w: staging directory: %v", ErrDevice, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("[SPOOLER] ⚠️ Could not remove staged pages")
		}
	}()

	media := paper.Dimensions(format).AtDPI(c.opts.DPI)
	var files []string
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDevice, err)
		}
		img, err := pages.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		canvas := raster.NewCanvas(media.Width, media.Height)
		raster.DrawPlaced(canvas, img)

		path := filepath.Join(dir, fmt.Sprintf("page-%04d.png", i))
		if err := writePNG(path, canvas); err != nil {
			return "", fmt.Errorf("%w: staging page %d: %v", ErrDevice, i, err)
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: document produced no pages", ErrDevice)
	}

	args := []string{
		"-d", printerID,
		"-n", strconv.Itoa(copies),
		"-o", "media=" + paper.DeviceMediaName(format),
		"-o", "fit-to-page",
	}
	out, err := c.command(ctx, nil, "lp", append(args, files...)...)
	if err != nil {
		return "", err
	}
	return jobIDFromOutput(out), nil
}

// command runs one device-channel command under the configured timeout.
func (c *CUPS) command(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	out, err := c.run(ctx, stdin, name, args...)
	if err == nil {
		return out, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %s after %v", ErrDeviceTimeout, name, c.opts.Timeout)
	}
	return out, fmt.Errorf("%w: %v", ErrDevice, err)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := png.Encode(w, img); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// parsePrinterLines extracts names from "printer <name> is ..." lines.
func parsePrinterLines(out []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "printer" {
			names = append(names, fields[1])
		}
	}
	return names
}

// parseDefaultDestination reads "system default destination: <name>".
func parseDefaultDestination(out []byte) string {
	const prefix = "system default destination:"
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

func jobIDFromOutput(out []byte) string {
	if m := requestIDPattern.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	return newJobToken()
}
