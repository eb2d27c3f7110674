package lexicon

import "strings"

var (
	exchangePrefixes = []string{"NSE:", "BSE:"}
	exchangeSuffixes = []string{".NSE", ".BSE", ".BO"}
)

const listingSuffix = ".NS"

// NormalizeSymbol upper-cases a ticker and rewrites Indian exchange
// qualifiers to the .NS listing form, so RELIANCE.BSE, NSE:RELIANCE and
// reliance.ns agree. Unqualified symbols are left bare.
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	for _, p := range exchangePrefixes {
		if len(s) > len(p) && strings.HasPrefix(s, p) {
			return strings.TrimPrefix(s, p) + listingSuffix
		}
	}
	for _, suffix := range exchangeSuffixes {
		if len(s) > len(suffix) && strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix) + listingSuffix
		}
	}
	return s
}

// NormalizeSymbols applies NormalizeSymbol to each entry, dropping blanks and
// repeats while keeping order. The result is never nil.
func NormalizeSymbols(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, s := range list {
			sym := NormalizeSymbol(s)
			if sym == "" {
				continue
			}
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	return out
}
