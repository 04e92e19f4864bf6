package watchlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "trims and uppercases",
			input:    []string{" aapl ", "Msft", "NVDA"},
			expected: []string{"AAPL", "MSFT", "NVDA"},
		},
		{
			name:     "drops empties",
			input:    []string{"", "  ", "spy"},
			expected: []string{"SPY"},
		},
		{
			name:     "dedupes preserving first-seen order",
			input:    []string{"tsla", "AAPL", "Tsla", "aapl", "AMD"},
			expected: []string{"TSLA", "AAPL", "AMD"},
		},
		{
			name:     "empty input",
			input:    nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wl := Normalize(tt.input)
			assert.Equal(t, tt.expected, wl.Symbols())
			assert.Equal(t, len(tt.expected), wl.Len())
		})
	}
}

func TestWatchlist_SymbolsReturnsCopy(t *testing.T) {
	wl := Normalize([]string{"aapl", "msft"})
	got := wl.Symbols()
	got[0] = "HACKED"
	assert.Equal(t, []string{"AAPL", "MSFT"}, wl.Symbols())
}

func TestWatchlist_Empty(t *testing.T) {
	assert.True(t, Normalize(nil).Empty())
	assert.False(t, Normalize([]string{"spy"}).Empty())
}
