package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLexiconLoads(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)
	assert.Greater(t, l.Len(), 100)
	assert.Contains(t, l.Symbols(), "RELIANCE.NS")
}

func TestScanDefault(t *testing.T) {
	l, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "name variants resolve to one symbol",
			text: "Reliance Industries and RIL are the same company; reliance shares rose",
			want: []string{"RELIANCE.NS"},
		},
		{
			name: "order of first appearance",
			text: "Infosys beat estimates while TCS lagged",
			want: []string{"INFY.NS", "TCS.NS"},
		},
		{
			name: "longest variant wins on overlap",
			text: "HDFC Life posts record premiums",
			want: []string{"HDFCLIFE.NS"},
		},
		{
			name: "whole words only",
			text: "Preliminary results from the Sailing club",
			want: []string{},
		},
		{
			name: "ampersand aliases",
			text: "M&M unveils new SUV",
			want: []string{"M&M.NS"},
		},
		{
			name: "case and whitespace insensitive",
			text: "state   bank of\nindia raises rates",
			want: []string{"SBIN.NS"},
		},
		{
			name: "empty text",
			text: "   ",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Scan(tt.text))
		})
	}
}

func TestLookup(t *testing.T) {
	l, err := New([]Entry{{Symbol: "tcs.ns", Names: []string{"Tata Consultancy Services", "TCS"}}})
	require.NoError(t, err)

	symbol, ok := l.Lookup("tata  consultancy services")
	require.True(t, ok)
	assert.Equal(t, "TCS.NS", symbol)

	_, ok = l.Lookup("Wipro")
	assert.False(t, ok)
}

func TestNewRejectsConflicts(t *testing.T) {
	_, err := New([]Entry{
		{Symbol: "A.NS", Names: []string{"Acme"}},
		{Symbol: "B.NS", Names: []string{"ACME"}},
	})
	require.Error(t, err)

	_, err = New([]Entry{{Names: []string{"Nameless"}}})
	require.Error(t, err)
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("symbol: [unterminated"))
	require.Error(t, err)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "RELIANCE.NS", NormalizeSymbol(" reliance.ns "))
	assert.Equal(t, "RELIANCE.NS", NormalizeSymbol("RELIANCE.BSE"))
	assert.Equal(t, "RELIANCE.NS", NormalizeSymbol("reliance.bo"))
	assert.Equal(t, "TCS.NS", NormalizeSymbol("NSE:TCS"))
	assert.Equal(t, "^NSEI", NormalizeSymbol("^nsei"))
	assert.Equal(t, "M&M", NormalizeSymbol("$M&M"))
	assert.Equal(t, "AAPL", NormalizeSymbol("aapl"))
	assert.Equal(t, ".BSE", NormalizeSymbol(".bse"))

	assert.Equal(t, []string{"INFY.NS", "TCS.NS"}, NormalizeSymbols([]string{"infy.ns", "INFY.BSE"}, []string{"", "tcs.bo"}))
	assert.NotNil(t, NormalizeSymbols())
}
