package sources

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// EncodePayload serializes a record for the raw_payload column, coercing
// values JSON cannot represent into strings.
func EncodePayload(rec RawRecord) json.RawMessage {
	if rec == nil {
		return nil
	}
	data, err := json.Marshal(Sanitize(map[string]any(rec)))
	if err != nil {
		return nil
	}
	return data
}

func Sanitize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
		return t
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	case RawRecord:
		return Sanitize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Sanitize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = val
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}
