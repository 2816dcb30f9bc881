package docstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

// Key tags. Numbers sort before strings.
const (
	tagNumber byte = 0x10
	tagString byte = 0x20
)

// maxGeneratedKey is the largest integer a float64 represents exactly.
const maxGeneratedKey = 1 << 53

// NormalizeKey converts a Go value to the canonical key representation:
// float64 for numbers, string for strings.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case float64:
		if math.IsNaN(k) {
			return nil, fmt.Errorf("%w: NaN is not a valid key", ErrData)
		}

		if k == 0 {
			return float64(0), nil
		}

		return k, nil
	case float32:
		return NormalizeKey(float64(k))
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(k), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrData, err)
		}

		return NormalizeKey(f)
	case string:
		return k, nil
	case nil:
		return nil, fmt.Errorf("%w: missing key", ErrData)
	default:
		return nil, fmt.Errorf("%w: %T is not a valid key", ErrData, v)
	}
}

// EncodeKey returns the order-preserving, self-delimiting encoding of v.
func EncodeKey(v any) ([]byte, error) {
	k, err := NormalizeKey(v)
	if err != nil {
		return nil, err
	}

	switch k := k.(type) {
	case float64:
		out := make([]byte, 9)
		out[0] = tagNumber
		binary.BigEndian.PutUint64(out[1:], orderedBits(k))

		return out, nil
	default:
		s := k.(string)
		out := make([]byte, 0, len(s)+3)
		out = append(out, tagString)

		for i := 0; i < len(s); i++ {
			if s[i] == 0x00 {
				out = append(out, 0x00, 0xFF)
				continue
			}

			out = append(out, s[i])
		}

		return append(out, 0x00, 0x01), nil
	}
}

// DecodeKey decodes the first key in b and returns it with the remaining bytes.
func DecodeKey(b []byte) (any, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty key encoding", ErrData)
	}

	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, nil, fmt.Errorf("%w: truncated number key", ErrData)
		}

		return fromOrderedBits(binary.BigEndian.Uint64(b[1:9])), b[9:], nil
	case tagString:
		var s []byte

		for i := 1; i < len(b); i++ {
			if b[i] != 0x00 {
				s = append(s, b[i])
				continue
			}

			if i+1 >= len(b) {
				break
			}

			switch b[i+1] {
			case 0x01:
				return string(s), b[i+2:], nil
			case 0xFF:
				s = append(s, 0x00)
				i++
			default:
				return nil, nil, fmt.Errorf("%w: bad string key escape", ErrData)
			}
		}

		return nil, nil, fmt.Errorf("%w: unterminated string key", ErrData)
	default:
		return nil, nil, fmt.Errorf("%w: unknown key tag 0x%02x", ErrData, b[0])
	}
}

// encodedKeyLen returns the length of the first encoded key in b.
func encodedKeyLen(b []byte) (int, error) {
	_, rest, err := DecodeKey(b)
	if err != nil {
		return 0, err
	}

	return len(b) - len(rest), nil
}

// CompareKeys orders two keys the way the store does.
func CompareKeys(a, b any) (int, error) {
	ea, err := EncodeKey(a)
	if err != nil {
		return 0, err
	}

	eb, err := EncodeKey(b)
	if err != nil {
		return 0, err
	}

	return bytes.Compare(ea, eb), nil
}

func orderedBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		return bits | 1<<63
	}

	return ^bits
}

func fromOrderedBits(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}

	return math.Float64frombits(^u)
}

// keyFromJSON extracts a valid key from a gjson result. ok is false when
// the value is missing or is not a number or string.
func keyFromJSON(r gjson.Result) (any, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		return r.Str, true
	default:
		return nil, false
	}
}

// prefixEnd returns the smallest key greater than every key with prefix p,
// or nil when no such key exists.
func prefixEnd(p []byte) []byte {
	end := make([]byte, len(p))
	copy(end, p)

	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}

	return nil
}
