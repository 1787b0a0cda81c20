package raster

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPDF builds a minimal well-formed PDF with one filled rectangle per page.
func testPDF(pages int, width, height float64) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))

	content := fmt.Sprintf("0 0 0 rg 10 10 %.0f %.0f re f", width-20, height-20)
	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.0f %.0f] /Contents %d 0 R >>",
			width, height, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not a pdf")},
		{"zpl", []byte("^XA^FO50,50^FDHello^FS^XZ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := Decode(tt.data, 850, 1100)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
			assert.Nil(t, pages)
		})
	}
}

func TestDecodeRejectsInvalidCanvas(t *testing.T) {
	_, err := Decode(testPDF(1, 612, 792), 0, 1100)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDecode))
}

func TestDecodeRendersEveryPageOnce(t *testing.T) {
	pages, err := Decode(testPDF(3, 612, 792), 850, 1100)
	require.NoError(t, err)
	defer func() { _ = pages.Close() }()

	assert.Equal(t, 3, pages.Len())
	for i := 0; i < 3; i++ {
		img, err := pages.Next()
		require.NoError(t, err, "page %d", i)
		assert.Equal(t, 850, img.Bounds().Dx())
		assert.Equal(t, 1100, img.Bounds().Dy())
	}

	_, err = pages.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPagesCloseIsIdempotent(t *testing.T) {
	pages, err := Decode(testPDF(1, 612, 792), 400, 600)
	require.NoError(t, err)

	require.NoError(t, pages.Close())
	require.NoError(t, pages.Close())

	_, err = pages.Next()
	assert.Error(t, err)
}
