package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/examacademy/academy-server/internal/stringutil"
)

type paperKind uint8

const (
	paperAbsent paperKind = iota
	paperNumber
	paperText
)

// PaperRef holds a paper identifier whose stored type differs between records:
// a JSON number, a numeric string, free text, or nothing at all.
// The original type survives a JSON round trip.
type PaperRef struct {
	kind paperKind
	raw  string
}

// PaperNumberRef returns a numeric paper reference.
func PaperNumberRef(n int) PaperRef {
	return PaperRef{kind: paperNumber, raw: strconv.Itoa(n)}
}

// PaperTextRef returns a string paper reference. Empty text is kept as text.
func PaperTextRef(s string) PaperRef {
	return PaperRef{kind: paperText, raw: s}
}

// PaperRefFromAny converts a decoded document value into a PaperRef.
// Unsupported types yield an absent reference.
func PaperRefFromAny(v any) PaperRef {
	switch x := v.(type) {
	case nil:
		return PaperRef{}
	case string:
		return PaperTextRef(x)
	case int:
		return PaperNumberRef(x)
	case int32:
		return PaperNumberRef(int(x))
	case int64:
		return PaperRef{kind: paperNumber, raw: strconv.FormatInt(x, 10)}
	case float64:
		return PaperRef{kind: paperNumber, raw: strconv.FormatFloat(x, 'f', -1, 64)}
	case json.Number:
		return PaperRef{kind: paperNumber, raw: x.String()}
	default:
		return PaperRef{}
	}
}

// IsZero reports whether the reference is absent.
func (p PaperRef) IsZero() bool {
	return p.kind == paperAbsent
}

// IsNumber reports whether the reference was stored as a number.
func (p PaperRef) IsNumber() bool {
	return p.kind == paperNumber
}

// Int coerces the reference to an integer using leading-integer parsing,
// so 5, "5" and "5 (new)" compare equal.
func (p PaperRef) Int() (int, bool) {
	if p.kind == paperAbsent {
		return 0, false
	}
	return stringutil.ParseLeadingInt(p.raw)
}

// Equals reports whether the reference coerces to n.
func (p PaperRef) Equals(n int) bool {
	v, ok := p.Int()
	return ok && v == n
}

// String returns the raw textual form, empty when absent.
func (p PaperRef) String() string {
	return p.raw
}

// Value returns the reference as a plain Go value for document encoders:
// nil, int64/float64 for numbers, string for text.
func (p PaperRef) Value() any {
	switch p.kind {
	case paperNumber:
		if n, err := strconv.ParseInt(p.raw, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(p.raw, 64); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return p.raw
	case paperText:
		return p.raw
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (p PaperRef) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case paperNumber:
		return []byte(p.raw), nil
	case paperText:
		return json.Marshal(p.raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PaperRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = PaperRef{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("paper reference: %w", err)
		}
		*p = PaperTextRef(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("paper reference must be a number or string: %w", err)
		}
		*p = PaperRef{kind: paperNumber, raw: n.String()}
	}
	return nil
}
