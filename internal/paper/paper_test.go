package paper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionsTotalAndPositive(t *testing.T) {
	for _, f := range All() {
		t.Run(string(f), func(t *testing.T) {
			s := Dimensions(f)
			assert.Positive(t, s.Width)
			assert.Positive(t, s.Height)
			assert.Equal(t, s, Dimensions(f), "mapping must be deterministic")
			assert.NotEmpty(t, DeviceMediaName(f))
		})
	}
}

func TestDimensionsFallbackToLetter(t *testing.T) {
	assert.Equal(t, Size{850, 1100}, Dimensions(Format("TABLOID")))
	assert.Equal(t, "Letter", DeviceMediaName(Format("TABLOID")))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"a4", A4, false},
		{"Letter", Letter, false},
		{" lbl_4x6 ", Label4x6, false},
		{"dhl_910_300_600", DHL910300600, false},
		{"A3", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestAtDPI(t *testing.T) {
	assert.Equal(t, Size{1700, 2200}, Dimensions(Letter).AtDPI(200))
	assert.Equal(t, Size{850, 1100}, Dimensions(Letter).AtDPI(0))
}

func TestTenthsMM(t *testing.T) {
	// A4 is 210 × 297 mm.
	got := Dimensions(A4).TenthsMM()
	assert.InDelta(t, 2100, got.Width, 5)
	assert.InDelta(t, 2970, got.Height, 5)
}

func TestNearest(t *testing.T) {
	candidates := []Size{{2159, 2794}, {2100, 2970}, {1480, 2100}}

	idx, ok := Nearest(Size{2101, 2969}, candidates, 20)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = Nearest(Size{1016, 1524}, candidates, 20)
	assert.False(t, ok, "4x6 label has no native match")

	_, ok = Nearest(Size{2100, 2970}, nil, 20)
	assert.False(t, ok)
}
