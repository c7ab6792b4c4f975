package snapshot

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Map is a cache value carrying key/value pairs that must round-trip as
// a map, not a struct-like object — §9's "Snapshot typing" note: a plain
// Go map encodes ambiguously under msgpack (it looks the same as an
// encoded struct), so Map registers its own extension tag to make the
// intent explicit on the wire.
type Map map[string]any

// Set is an unordered collection of unique string members, given its own
// extension tag for the same reason as Map: without one, a Set would be
// indistinguishable from an ordinary array on the wire and would silently
// lose its "unordered, unique" semantics on decode.
type Set map[string]struct{}

// NewSet builds a Set from the given members, deduplicating them.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Members returns s's contents as a sorted slice, so two calls against
// equal sets (and, in turn, two encodings of equal sets) always agree.
func (s Set) Members() []string {
	members := make([]string, 0, len(s))
	for m := range s {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

const (
	extIDMap int8 = 1
	extIDSet int8 = 2
)

func init() {
	msgpack.RegisterExt(extIDMap, (*Map)(nil))
	msgpack.RegisterExt(extIDSet, (*Set)(nil))
}

// EncodeMsgpack implements msgpack.CustomEncoder so Map is always tagged
// as ext type 1 rather than encoded as a bare map.
func (m Map) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(map[string]any(m))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *Map) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw := make(map[string]any)
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder so Set is always tagged
// as ext type 2, encoded as its sorted member list.
func (s Set) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(s.Members())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (s *Set) DecodeMsgpack(dec *msgpack.Decoder) error {
	var members []string
	if err := dec.Decode(&members); err != nil {
		return err
	}
	*s = NewSet(members...)
	return nil
}
