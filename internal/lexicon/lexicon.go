package lexicon

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed data/lexicon.yaml
var defaultData []byte

type Entry struct {
	Symbol string   `yaml:"symbol"`
	Names  []string `yaml:"names"`
}

type alias struct {
	text   string
	symbol string
}

// Lexicon maps company-name variants to canonical ticker symbols. It is
// immutable after construction and safe for concurrent use.
type Lexicon struct {
	aliases []alias
	byName  map[string]string
	symbols []string
}

func Default() (*Lexicon, error) {
	return Parse(defaultData)
}

func Parse(data []byte) (*Lexicon, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	return New(entries)
}

func New(entries []Entry) (*Lexicon, error) {
	l := &Lexicon{byName: make(map[string]string)}
	seenSymbols := make(map[string]struct{})

	for _, e := range entries {
		symbol := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("lexicon entry with names %v has no symbol", e.Names)
		}
		if _, ok := seenSymbols[symbol]; !ok {
			seenSymbols[symbol] = struct{}{}
			l.symbols = append(l.symbols, symbol)
		}

		for _, name := range e.Names {
			key := normalize(name)
			if key == "" {
				continue
			}
			if prev, ok := l.byName[key]; ok && prev != symbol {
				return nil, fmt.Errorf("lexicon name %q maps to both %s and %s", name, prev, symbol)
			}
			if _, ok := l.byName[key]; ok {
				continue
			}
			l.byName[key] = symbol
			l.aliases = append(l.aliases, alias{text: key, symbol: symbol})
		}
	}

	return l, nil
}

// Lookup resolves one exact name variant.
func (l *Lexicon) Lookup(name string) (string, bool) {
	symbol, ok := l.byName[normalize(name)]
	return symbol, ok
}

func (l *Lexicon) Symbols() []string {
	return append([]string(nil), l.symbols...)
}

func (l *Lexicon) Len() int {
	return len(l.aliases)
}

type match struct {
	start, end int
	symbol     string
}

// Scan returns the symbols of every name variant found in text as a whole
// word, in order of first appearance. Where variants overlap, the longest
// one wins.
func (l *Lexicon) Scan(text string) []string {
	haystack := normalize(text)
	if haystack == "" {
		return []string{}
	}

	var matches []match
	for _, a := range l.aliases {
		from := 0
		for from < len(haystack) {
			idx := strings.Index(haystack[from:], a.text)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(a.text)
			if isBoundary(haystack, start, end) {
				matches = append(matches, match{start: start, end: end, symbol: a.symbol})
			}
			from = start + 1
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		li, lj := matches[i].end-matches[i].start, matches[j].end-matches[j].start
		if li != lj {
			return li > lj
		}
		return matches[i].start < matches[j].start
	})

	var accepted []match
	for _, m := range matches {
		overlaps := false
		for _, a := range accepted {
			if m.start < a.end && a.start < m.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, m)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	out := make([]string, 0, len(accepted))
	seen := make(map[string]struct{}, len(accepted))
	for _, m := range accepted {
		if _, ok := seen[m.symbol]; ok {
			continue
		}
		seen[m.symbol] = struct{}{}
		out = append(out, m.symbol)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

func isBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&'
}
