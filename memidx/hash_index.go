// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package memidx

import (
	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"github.com/erigontech/memtx-mvcc"
)

func hashStringKey(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}

// HashIndex is an unordered, unique Index backed by a freelru.LRU,
// standing in for the source's hash-table-backed index kind. It never
// reports a meaningful successor, since a hash index has no order for
// a nearby-gap tracker to attach to; readers against it only ever use
// point-hole or full-scan tracking.
type HashIndex struct {
	def     memtx.IndexDef
	keyDef  memtx.KeyDef
	byKey   *freelru.LRU[string, memtx.Tuple]
	orphans []*memtx.GapReader
	refs    int32
}

// NewHashIndex builds an unordered index with the given bounded
// capacity. keyDef.Key must be set: it extracts the bytes used as the
// hash table's key.
func NewHashIndex(def memtx.IndexDef, keyDef memtx.KeyDef, capacity uint32) *HashIndex {
	lru, err := freelru.New[string, memtx.Tuple](capacity, hashStringKey)
	if err != nil {
		panic("memidx: failed to create hash index: " + err.Error())
	}
	return &HashIndex{def: def, keyDef: keyDef, byKey: lru}
}

func (h *HashIndex) Def() *memtx.IndexDef  { return &h.def }
func (h *HashIndex) KeyDef() *memtx.KeyDef { return &h.keyDef }
func (h *HashIndex) Ordered() bool         { return false }
func (h *HashIndex) KeyExcluded(memtx.Tuple) bool { return false }

func (h *HashIndex) OrphanGaps() []*memtx.GapReader     { return h.orphans }
func (h *HashIndex) SetOrphanGaps(g []*memtx.GapReader) { h.orphans = g }

func (h *HashIndex) Ref()   { h.refs++ }
func (h *HashIndex) Unref() { h.refs-- }

func (h *HashIndex) Replace(old, new memtx.Tuple, mode memtx.ReplaceMode) (removed, successor memtx.Tuple, err error) {
	if old != nil {
		key := string(h.keyDef.Key(old))
		if prev, ok := h.byKey.Get(key); ok {
			removed = prev
		}
		h.byKey.Remove(key)
	}
	if new == nil {
		return removed, nil, nil
	}
	key := string(h.keyDef.Key(new))
	if prev, ok := h.byKey.Get(key); ok && removed == nil {
		removed = prev
	}
	h.byKey.Add(key, new)
	return removed, nil, nil
}
