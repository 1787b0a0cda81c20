package spooler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adcondev/print-servicio/internal/paper"
)

func TestSelectPaper(t *testing.T) {
	// DMPAPER ids and sizes as a laser driver reports them.
	ids := []uint16{1, 5, 9}
	sizes := []paper.Size{
		{Width: 2159, Height: 2794}, // Letter
		{Width: 2159, Height: 3556}, // Legal
		{Width: 2100, Height: 2970}, // A4
	}

	tests := []struct {
		name   string
		format paper.Format
		want   paperChoice
	}{
		{"exact native", paper.Letter, paperChoice{ID: 1, Size: sizes[0]}},
		{"within tolerance", paper.A4, paperChoice{ID: 9, Size: sizes[2]}},
		{"no native label stock", paper.Label4x6, paperChoice{Custom: true, Size: paper.Dimensions(paper.Label4x6).TenthsMM()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectPaper(tt.format, ids, sizes, 20))
		})
	}
}

func TestSelectPaperFallsBackWithoutDriverList(t *testing.T) {
	got := selectPaper(paper.A5, nil, nil, 20)
	assert.True(t, got.Custom)
	assert.Equal(t, paper.Dimensions(paper.A5).TenthsMM(), got.Size)

	// Mismatched driver answers are ignored.
	got = selectPaper(paper.Letter, []uint16{1}, nil, 20)
	assert.True(t, got.Custom)
}
