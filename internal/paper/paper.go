// Package paper maps paper-format identifiers to physical dimensions.
package paper

import (
	"fmt"
	"strings"
)

// Format identifies one of the supported paper formats.
type Format string

// Supported paper formats.
const (
	A4           Format = "A4"
	A5           Format = "A5"
	A6           Format = "A6"
	A7           Format = "A7"
	B5           Format = "B5"
	B6           Format = "B6"
	Legal        Format = "LEGAL"
	Letter       Format = "LETTER"
	Label4x6     Format = "LBL_4X6"
	Label4x8     Format = "LBL_4X8"
	Label4x4     Format = "LBL_4X4"
	DHL910300600 Format = "DHL_910_300_600"
)

const (
	baselineDPI    = 100
	mmPerHundredth = 0.254
)

// Size is a width × height pair in hundredths of an inch (pixels at 100 DPI).
type Size struct {
	Width  int
	Height int
}

type entry struct {
	size  Size
	media string
}

// formats is the closed set. Label media use CUPS custom sizes.
var formats = map[Format]entry{
	A4:           {Size{827, 1169}, "A4"},
	A5:           {Size{583, 827}, "A5"},
	A6:           {Size{413, 583}, "A6"},
	A7:           {Size{291, 413}, "A7"},
	B5:           {Size{693, 984}, "B5"},
	B6:           {Size{492, 693}, "B6"},
	Legal:        {Size{850, 1400}, "Legal"},
	Letter:       {Size{850, 1100}, "Letter"},
	Label4x6:     {Size{400, 600}, "Custom.4x6in"},
	Label4x8:     {Size{400, 800}, "Custom.4x8in"},
	Label4x4:     {Size{400, 400}, "Custom.4x4in"},
	DHL910300600: {Size{406, 783}, "Custom.103x199mm"},
}

// All returns every supported format in a stable order.
func All() []Format {
	return []Format{A4, A5, A6, A7, B5, B6, Legal, Letter, Label4x6, Label4x8, Label4x4, DHL910300600}
}

// Parse resolves a case-insensitive format name.
func Parse(s string) (Format, error) {
	f := Format(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := formats[f]; !ok {
		return "", fmt.Errorf("unsupported paper format %q", s)
	}
	return f, nil
}

// Valid reports whether f belongs to the supported set.
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}

// Dimensions returns the size of f in hundredths of an inch.
// Unknown formats fall back to LETTER.
func Dimensions(f Format) Size {
	if e, ok := formats[f]; ok {
		return e.size
	}
	return formats[Letter].size
}

// DeviceMediaName returns the CUPS media name for f.
func DeviceMediaName(f Format) string {
	if e, ok := formats[f]; ok {
		return e.media
	}
	return formats[Letter].media
}

// AtDPI scales s from the 100-DPI baseline to dpi.
func (s Size) AtDPI(dpi int) Size {
	if dpi <= 0 {
		dpi = baselineDPI
	}
	return Size{
		Width:  s.Width * dpi / baselineDPI,
		Height: s.Height * dpi / baselineDPI,
	}
}

// TenthsMM converts s to tenths of a millimetre, the unit Windows uses for paper sizes.
func (s Size) TenthsMM() Size {
	return Size{
		Width:  int(float64(s.Width)*mmPerHundredth*10 + 0.5),
		Height: int(float64(s.Height)*mmPerHundredth*10 + 0.5),
	}
}

// Nearest returns the index of the candidate closest to target. A candidate is
// accepted only if both axes lie within tolerance.
func Nearest(target Size, candidates []Size, tolerance int) (int, bool) {
	best, bestDist := -1, 0
	for i, c := range candidates {
		dw, dh := abs(c.Width-target.Width), abs(c.Height-target.Height)
		if dw > tolerance || dh > tolerance {
			continue
		}
		if best < 0 || dw+dh < bestDist {
			best, bestDist = i, dw+dh
		}
	}
	return best, best >= 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
