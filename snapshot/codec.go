// Package snapshot implements the binary snapshot/recovery subsystem
// (§4.7): a deterministic msgpack codec for the blob written on a fixed
// interval, a background Writer, and a Replay helper the memory driver
// uses at startup.
package snapshot

import (
	"bytes"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/groc-prog/cache-nest/policy"
)

// EntryRecord is one cache entry as written to a snapshot blob.
type EntryRecord struct {
	Key           string        `msgpack:"key"`
	Data          []byte        `msgpack:"data"`
	Metadata      Map           `msgpack:"metadata"`
	Hits          uint64        `msgpack:"hits"`
	CTime         time.Time     `msgpack:"ctime"`
	ATime         time.Time     `msgpack:"atime"`
	TTL           time.Duration `msgpack:"ttl"`
	InvalidatedBy Set           `msgpack:"invalidatedBy"`
}

// CacheRecord is one policy-bound cache's full state: its entry table and
// its policy's ordering snapshot (§3's "[Snapshot] per-policy: serialized
// policy state + entry table").
type CacheRecord struct {
	Hash         string         `msgpack:"hash"`
	Policy       policy.Kind    `msgpack:"policy"`
	Entries      []EntryRecord  `msgpack:"entries"`
	PolicyOrder  []string       `msgpack:"policyOrder"`
	PolicyCounts map[string]int `msgpack:"policyCounts"`
}

// Blob is the complete content of a snapshot file: every cache and its
// entries, across all six policies, for one driver instance.
type Blob struct {
	WrittenAt time.Time     `msgpack:"writtenAt"`
	Caches    []CacheRecord `msgpack:"caches"`
}

// Codec encodes and decodes Blob values deterministically: fields are
// written in struct declaration order, map keys are written in sorted
// order and Set members are written sorted, so re-encoding an unchanged
// blob yields byte-identical output (§9's "Snapshot binary format"
// requirement). Slices such as PolicyOrder are written as given.
type Codec struct{}

// Encode writes blob to w as a single msgpack value.
func (Codec) Encode(w io.Writer, blob Blob) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(blob)
}

// EncodeBytes is a convenience wrapper around Encode for callers that
// want the blob as an in-memory buffer before writing it out atomically.
func (c Codec) EncodeBytes(blob Blob) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, blob); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a single msgpack-encoded Blob from r.
func (Codec) Decode(r io.Reader) (Blob, error) {
	var blob Blob
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&blob); err != nil {
		return Blob{}, err
	}
	return blob, nil
}
