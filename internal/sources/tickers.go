package sources

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/marketpulse/backend/internal/lexicon"
	"github.com/marketpulse/backend/pkg/utils"
)

var (
	quotePathRe  = regexp.MustCompile(`(?i)/(?:quote|symbol|stock|equity)/([\^A-Z0-9][A-Z0-9.&\-]*)`)
	listedTextRe = regexp.MustCompile(`\^[A-Z][A-Z0-9]+|\b[A-Z][A-Z0-9&\-]{1,19}\.(?:NSE|BSE|NS|BO)\b`)
	cashtagRe    = regexp.MustCompile(`\$([A-Z][A-Z0-9&\-]{1,19})\b`)
)

// TopRelevanceTicker returns the single ticker with the highest relevance
// score. Scores may be strings or numbers; ties keep the earliest entry.
func TopRelevanceTicker(entries []any) (string, bool) {
	best := ""
	bestScore := -1.0
	for _, e := range entries {
		m, ok := asMap(e)
		if !ok {
			continue
		}
		ticker := lexicon.NormalizeSymbol(RawRecord(m).String("ticker"))
		if ticker == "" {
			continue
		}
		score, ok := toFloat(m["relevance_score"])
		if !ok {
			score = 0
		}
		if score > bestScore {
			best, bestScore = ticker, score
		}
	}
	return best, best != ""
}

// SplitSymbols parses a comma or space separated symbol list.
func SplitSymbols(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '|'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if sym := lexicon.NormalizeSymbol(f); sym != "" {
			out = append(out, sym)
		}
	}
	return utils.UniqueUpper(out)
}

// ScanMarkupSymbols extracts symbols from quote links and $-tagged or
// exchange-suffixed tokens in an HTML fragment. Percent escapes such as
// %5E are decoded. Order of first appearance is kept.
func ScanMarkupSymbols(markup string) []string {
	if strings.TrimSpace(markup) == "" {
		return []string{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return []string{}
	}

	var found []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		found = append(found, symbolsFromHref(href)...)
	})

	text := doc.Text()
	for _, token := range listedTextRe.FindAllString(text, -1) {
		found = append(found, lexicon.NormalizeSymbol(token))
	}
	for _, m := range cashtagRe.FindAllStringSubmatch(text, -1) {
		found = append(found, lexicon.NormalizeSymbol(m[1]))
	}

	return utils.UniqueUpper(found)
}

func symbolsFromHref(href string) []string {
	decoded, err := url.PathUnescape(href)
	if err != nil {
		decoded = href
	}

	var out []string
	for _, m := range quotePathRe.FindAllStringSubmatch(decoded, -1) {
		out = append(out, lexicon.NormalizeSymbol(m[1]))
	}

	if u, err := url.Parse(href); err == nil {
		q := u.Query()
		for _, key := range []string{"symbol", "symbols", "s", "ticker"} {
			for _, v := range q[key] {
				out = append(out, SplitSymbols(v)...)
			}
		}
	}
	return out
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from spacing.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return utils.CollapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return utils.CollapseSpace(s)
	}
	doc.Find("script, style").Remove()
	return utils.CollapseSpace(doc.Text())
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case RawRecord:
		return t, true
	}
	return nil, false
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
