package dispatch

import "strconv"

// Params carries request parameters as strings, the way tool clients
// send them. Typed accessors are lenient: a missing key or an
// unparseable value yields the caller's default instead of an error.
type Params map[string]string

// Has reports whether the key is present at all.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns the raw value or def when the key is absent.
func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int parses the value as a decimal integer, falling back to def.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Uint32 parses the value as an unsigned integer, falling back to def.
// Hex values with an 0x prefix are accepted, which clients use for
// field flag masks.
func (p Params) Uint32(key string, def uint32) uint32 {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

// Bool parses the value with strconv.ParseBool, falling back to def.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
