package signals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/marketpulse/backend/internal/lexicon"
	"github.com/marketpulse/backend/internal/storage/models"
)

// DefaultConfidence replaces a missing or unusable impact confidence.
const DefaultConfidence = 0.5

// Signal is a reconciled enrichment result with every field populated.
type Signal struct {
	ID               int64
	Tickers          []string
	ImpactLabel      string
	ImpactConfidence float64
	ImpactSummary    string
	Topics           []string
}

// Reconcile fills defaults into a raw entry. ok is false when the entry has
// no usable id.
func Reconcile(raw RawSignal) (Signal, bool) {
	id, ok := toID(raw["id"])
	if !ok {
		return Signal{}, false
	}

	return Signal{
		ID:               id,
		Tickers:          lexicon.NormalizeSymbols(toStrings(raw["tickers"])),
		ImpactLabel:      toLabel(raw["impact_label"]),
		ImpactConfidence: toConfidence(raw["impact_confidence"]),
		ImpactSummary:    toText(raw["impact_summary"]),
		Topics:           uniqueTrimmed(toStrings(raw["topics"])),
	}, true
}

func toID(v any) (int64, bool) {
	var id int64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return 0, false
			}
			n = int64(f)
		}
		id = n
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		id = int64(t)
	case int:
		id = int64(t)
	case int64:
		id = t
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}
	return id, id > 0
}

func toConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return DefaultConfidence
		}
		f = n
	case float64:
		f = t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return DefaultConfidence
		}
		f = n
	default:
		return DefaultConfidence
	}
	if math.IsNaN(f) || f < 0 || f > 1 {
		return DefaultConfidence
	}
	return f
}

func toLabel(v any) string {
	s, _ := v.(string)
	s = strings.ToLower(strings.TrimSpace(s))
	if !models.ValidImpactLabel(s) {
		return models.ImpactUncertain
	}
	return s
}

func toText(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// toStrings accepts a list of strings or a single comma separated string.
func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(t, ",")
	}
	return nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
