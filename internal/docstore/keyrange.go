package docstore

import (
	"bytes"
	"fmt"
)

// KeyRange is a continuous interval of keys. A nil *KeyRange matches every key.
type KeyRange struct {
	lowerKey  any
	upperKey  any
	lowerOpen bool
	upperOpen bool

	lower []byte
	upper []byte
}

// Lower returns the lower bound (nil when unbounded) and whether it is open.
func (r *KeyRange) Lower() (any, bool) { return r.lowerKey, r.lowerOpen }

// Upper returns the upper bound (nil when unbounded) and whether it is open.
func (r *KeyRange) Upper() (any, bool) { return r.upperKey, r.upperOpen }

// Only matches a single key.
func Only(v any) (*KeyRange, error) {
	return Bound(v, v, false, false)
}

// LowerBound matches every key above v (or equal, unless open).
func LowerBound(v any, open bool) (*KeyRange, error) {
	enc, err := EncodeKey(v)
	if err != nil {
		return nil, err
	}

	k, _ := NormalizeKey(v)

	return &KeyRange{lowerKey: k, lowerOpen: open, lower: enc}, nil
}

// UpperBound matches every key below v (or equal, unless open).
func UpperBound(v any, open bool) (*KeyRange, error) {
	enc, err := EncodeKey(v)
	if err != nil {
		return nil, err
	}

	k, _ := NormalizeKey(v)

	return &KeyRange{upperKey: k, upperOpen: open, upper: enc}, nil
}

// Bound matches keys between lower and upper.
func Bound(lower, upper any, lowerOpen, upperOpen bool) (*KeyRange, error) {
	lo, err := EncodeKey(lower)
	if err != nil {
		return nil, err
	}

	hi, err := EncodeKey(upper)
	if err != nil {
		return nil, err
	}

	switch c := bytes.Compare(lo, hi); {
	case c > 0:
		return nil, fmt.Errorf("%w: lower bound is greater than upper bound", ErrData)
	case c == 0 && (lowerOpen || upperOpen):
		return nil, fmt.Errorf("%w: empty range with equal open bounds", ErrData)
	}

	l, _ := NormalizeKey(lower)
	u, _ := NormalizeKey(upper)

	return &KeyRange{
		lowerKey:  l,
		upperKey:  u,
		lowerOpen: lowerOpen,
		upperOpen: upperOpen,
		lower:     lo,
		upper:     hi,
	}, nil
}

// Includes reports whether key lies within the range.
func (r *KeyRange) Includes(key any) (bool, error) {
	enc, err := EncodeKey(key)
	if err != nil {
		return false, err
	}

	return r.includes(enc), nil
}

func (r *KeyRange) includes(enc []byte) bool {
	if r == nil {
		return true
	}

	if r.lower != nil {
		c := bytes.Compare(enc, r.lower)
		if c < 0 || (c == 0 && r.lowerOpen) {
			return false
		}
	}

	if r.upper != nil {
		c := bytes.Compare(enc, r.upper)
		if c > 0 || (c == 0 && r.upperOpen) {
			return false
		}
	}

	return true
}

// pastUpper reports whether enc and every key after it fall outside the range.
func (r *KeyRange) pastUpper(enc []byte) bool {
	if r == nil || r.upper == nil {
		return false
	}

	c := bytes.Compare(enc, r.upper)

	return c > 0 || (c == 0 && r.upperOpen)
}

// start returns the first storage key to seek to for a bucket whose keys
// begin with an encoded key (records or index entries).
func (r *KeyRange) start() []byte {
	if r == nil || r.lower == nil {
		return nil
	}

	if r.lowerOpen {
		// skip every entry whose leading key equals the bound
		return prefixEnd(r.lower)
	}

	return r.lower
}
