package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Digest accumulates a sha256 over simulation state. Every section writes
// fixed-width little-endian integers and length-prefixed strings so that two
// different states cannot produce the same byte stream.
type Digest struct {
	h   hash.Hash
	tmp [8]byte
}

func NewDigest(tick uint64) *Digest {
	d := &Digest{h: sha256.New()}
	d.U64(tick)
	return d
}

func (d *Digest) U64(v uint64) {
	binary.LittleEndian.PutUint64(d.tmp[:], v)
	d.h.Write(d.tmp[:])
}

func (d *Digest) I64(v int64) { d.U64(uint64(v)) }

func (d *Digest) Bool(v bool) {
	if v {
		d.h.Write([]byte{1})
		return
	}
	d.h.Write([]byte{0})
}

func (d *Digest) Str(s string) {
	d.U64(uint64(len(s)))
	d.h.Write([]byte(s))
}

// SortedKeys returns map keys in byte order, for deterministic map sections.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Digest) Sum() string { return hex.EncodeToString(d.h.Sum(nil)) }

// WriteDigest hashes every actor in ascending id order.
func (s *Store) WriteDigest(d *Digest) {
	d.U64(uint64(s.nextID))
	d.U64(uint64(len(s.order)))
	for _, id := range s.order {
		a := s.actors[id]
		d.U64(uint64(a.ID))
		d.Str(a.Tag)
		d.Str(a.Kind)
		d.I64(int64(a.Camp))
		d.I64(int64(a.Pos.X))
		d.I64(int64(a.Pos.Y))
		d.I64(int64(a.Facing))
		d.I64(int64(a.Speed))
		d.Bool(a.Moving)
		if a.Moving {
			d.I64(int64(a.Dest.X))
			d.I64(int64(a.Dest.Y))
		}
		d.I64(int64(a.HP))
		d.I64(int64(a.MaxHP))
		d.I64(int64(a.Attack))
		d.I64(int64(a.Range))
		d.U64(uint64(a.Target))
		d.Str(a.Behavior)
	}
}
