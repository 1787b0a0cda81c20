package spooler

import "github.com/adcondev/print-servicio/internal/paper"

// paperChoice is the driver paper picked for one format. Sizes are in tenths
// of a millimetre.
type paperChoice struct {
	ID     uint16
	Custom bool
	Size   paper.Size
}

// selectPaper picks the native paper nearest to format when both axes are
// within tolerance, and a custom size of the exact format otherwise.
func selectPaper(format paper.Format, ids []uint16, sizes []paper.Size, tolerance int) paperChoice {
	target := paper.Dimensions(format).TenthsMM()
	if len(ids) == len(sizes) {
		if i, ok := paper.Nearest(target, sizes, tolerance); ok {
			return paperChoice{ID: ids[i], Size: sizes[i]}
		}
	}
	return paperChoice{Custom: true, Size: target}
}
