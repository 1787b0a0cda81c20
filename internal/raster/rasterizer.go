// Package raster decodes PDF documents into page bitmaps and fits bitmaps
// into printable areas.
package raster

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/gen2brain/go-fitz"
)

// ErrDecode is returned when a buffer cannot be parsed as a document.
var ErrDecode = errors.New("pdf decode failed")

// pointsPerInch is the PDF user-space unit.
const pointsPerInch = 72.0

// Pages is a forward-only sequence of rendered pages. Each page is rendered
// once, in order, when Next is called. Pages is not safe for concurrent use.
type Pages struct {
	doc    *fitz.Document
	count  int
	next   int
	width  int
	height int
}

// Decode opens data as a PDF and prepares to render its pages onto
// width×height canvases. It fails with ErrDecode if data is not a parseable
// document.
func Decode(data []byte, width, height int) (*Pages, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target canvas %dx%d", width, height)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	count := doc.NumPage()
	if count <= 0 {
		_ = doc.Close()
		return nil, fmt.Errorf("%w: document has no pages", ErrDecode)
	}

	return &Pages{doc: doc, count: count, width: width, height: height}, nil
}

// Len returns the number of pages in the document.
func (p *Pages) Len() int { return p.count }

// Next renders the next page onto a white canvas of the target size. It
// returns io.EOF once every page has been produced.
func (p *Pages) Next() (image.Image, error) {
	if p.doc == nil {
		return nil, errors.New("pages already closed")
	}
	if p.next >= p.count {
		return nil, io.EOF
	}
	i := p.next
	p.next++

	bound, err := p.doc.Bound(i)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d bounds: %v", ErrDecode, i, err)
	}

	img, err := p.doc.ImageDPI(i, fitDPI(bound, p.width, p.height))
	if err != nil {
		return nil, fmt.Errorf("%w: page %d render: %v", ErrDecode, i, err)
	}

	canvas := NewCanvas(p.width, p.height)
	DrawPlaced(canvas, img)
	return canvas, nil
}

// Close releases the underlying document. It is safe to call more than once.
func (p *Pages) Close() error {
	if p.doc == nil {
		return nil
	}
	err := p.doc.Close()
	p.doc = nil
	return err
}

// fitDPI picks the resolution at which a page with the given point bounds
// fits inside width×height pixels.
func fitDPI(bound image.Rectangle, width, height int) float64 {
	bw, bh := float64(bound.Dx()), float64(bound.Dy())
	if bw <= 0 || bh <= 0 {
		return pointsPerInch
	}
	scale := math.Min(float64(width)/bw, float64(height)/bh)
	return pointsPerInch * scale
}
