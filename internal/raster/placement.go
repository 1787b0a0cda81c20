package raster

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Placement describes how a source bitmap fits into a destination area
// without distortion.
type Placement struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
	Width   float64 // scaled source width
	Height  float64 // scaled source height
}

// Place computes the uniform scale that fits srcW×srcH inside dstW×dstH and
// the offset that centers the result.
func Place(srcW, srcH, dstW, dstH int) Placement {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Placement{}
	}
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	w := float64(srcW) * scale
	h := float64(srcH) * scale
	return Placement{
		Scale:   scale,
		OffsetX: (float64(dstW) - w) / 2,
		OffsetY: (float64(dstH) - h) / 2,
		Width:   w,
		Height:  h,
	}
}

// Rect returns the integer rectangle, relative to the destination origin, the
// placed bitmap occupies. It never exceeds dstW×dstH.
func (p Placement) Rect(dstW, dstH int) image.Rectangle {
	if p.Scale <= 0 {
		return image.Rectangle{}
	}
	w := min(int(math.Round(p.Width)), dstW)
	h := min(int(math.Round(p.Height)), dstH)
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// DrawPlaced scales src into dst, centered and aspect-preserving, and
// returns the placement used.
func DrawPlaced(dst draw.Image, src image.Image) Placement {
	db, sb := dst.Bounds(), src.Bounds()
	p := Place(sb.Dx(), sb.Dy(), db.Dx(), db.Dy())
	r := p.Rect(db.Dx(), db.Dy())
	if r.Empty() {
		return p
	}
	xdraw.BiLinear.Scale(dst, r.Add(db.Min), src, sb, xdraw.Over, nil)
	return p
}

// NewCanvas returns an opaque white RGBA image of the given size.
func NewCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}
