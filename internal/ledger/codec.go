package ledger

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"bubble-ledger-go/internal/models"
)

const (
	// maxUnwrapDepth bounds how many string-encoding layers are peeled off stored progress.
	maxUnwrapDepth = 3
	// corruptKeySkew is how many keys beyond the slot count are tolerated before the map is
	// considered corrupted.
	corruptKeySkew = 5
)

// SlotProgress maps a 1-based slot index to accumulated bubbles. Absent keys mean zero.
type SlotProgress map[int]int64

// Get returns the progress recorded for slot, zero when absent
func (p SlotProgress) Get(slot int) int64 {
	return p[slot]
}

// Total sums every slot's progress
func (p SlotProgress) Total() int64 {
	var total int64
	for _, v := range p {
		total += v
	}
	return total
}

// Slots returns the populated slot indexes in ascending order
func (p SlotProgress) Slots() []int {
	slots := make([]int, 0, len(p))
	for slot := range p {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// Clone returns an independent copy
func (p SlotProgress) Clone() SlotProgress {
	out := make(SlotProgress, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Decoded is the outcome of reading stored slot progress. Progress is always usable.
type Decoded struct {
	Progress  SlotProgress
	Recovered bool
	Reason    string
}

// DecodeSlotProgress reads raw stored progress (a structured map, a JSON string encoded up to three
// times, nil, or garbage) and normalizes it against slotCount. It never fails: unreadable or
// corrupted input yields an empty map with Recovered set.
func DecodeSlotProgress(raw any, slotCount int) Decoded {
	m, reason := unwrap(raw)
	if reason != "" {
		return Decoded{Progress: SlotProgress{}, Recovered: true, Reason: reason}
	}
	if reason := corruption(m, slotCount); reason != "" {
		return Decoded{Progress: SlotProgress{}, Recovered: true, Reason: reason}
	}
	return Decoded{Progress: normalize(m, slotCount)}
}

// Normalize applies the decode normalization rules to an already structured map.
func Normalize(p SlotProgress, slotCount int) SlotProgress {
	return DecodeSlotProgress(p, slotCount).Progress
}

// EncodeSlotProgress serializes progress as exactly one layer of JSON. Zero and negative entries are
// omitted.
func EncodeSlotProgress(p SlotProgress) string {
	out := make(map[string]int64, len(p))
	for slot, v := range p {
		if slot < 1 || v <= 0 {
			continue
		}
		out[strconv.Itoa(slot)] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		// map[string]int64 always marshals
		return "{}"
	}
	return string(data)
}

// unwrap reduces raw to a generic map. A non-empty reason means the input was unusable.
func unwrap(raw any) (map[string]any, string) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, ""
	case SlotProgress:
		return intKeyed(v), ""
	case map[int]int64:
		return intKeyed(v), ""
	case map[string]any:
		return v, ""
	case map[string]int64:
		out := make(map[string]any, len(v))
		for k, n := range v {
			out[k] = n
		}
		return out, ""
	case []byte:
		return unwrapString(string(v))
	case string:
		return unwrapString(v)
	default:
		return nil, "unsupported stored type"
	}
}

func intKeyed(p map[int]int64) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[strconv.Itoa(k)] = v
	}
	return out
}

func unwrapString(s string) (map[string]any, string) {
	for depth := 0; depth <= maxUnwrapDepth; depth++ {
		s = strings.TrimSpace(s)
		if s == "" || s == "null" {
			return map[string]any{}, ""
		}

		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, "unparseable json"
		}

		switch v := decoded.(type) {
		case nil:
			return map[string]any{}, ""
		case map[string]any:
			return v, ""
		case string:
			s = v
		default:
			return nil, "not a json object"
		}
	}
	return nil, "too many encoding layers"
}

func corruption(m map[string]any, slotCount int) string {
	if len(m) > slotCount+corruptKeySkew {
		return "too many keys"
	}
	for _, v := range m {
		if s, ok := v.(string); ok && len([]rune(s)) == 1 && (s[0] < '0' || s[0] > '9') {
			return "non-numeric character value"
		}
	}
	return ""
}

func normalize(m map[string]any, slotCount int) SlotProgress {
	out := SlotProgress{}
	for k, v := range m {
		slot, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || slot < 1 || slot > slotCount {
			continue
		}
		n := coerce(v)
		if n <= 0 || n > models.SlotCapacity {
			continue
		}
		out[slot] = n
	}
	return out
}

func coerce(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		if math.IsNaN(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0
		}
		return int64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return coerce(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return coerce(f)
	default:
		return 0
	}
}
