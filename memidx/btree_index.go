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

// Package memidx ships reference Index implementations exercising this
// module's own test suite: an ordered, B-tree-backed index and an
// unordered, hash-backed one. Neither is meant to be a production
// storage engine; they exist so the manager's behavior can be driven
// end to end without a real storage layer in the loop.
package memidx

import (
	"github.com/google/btree"

	"github.com/erigontech/memtx-mvcc"
)

// BTreeIndex is an ordered Index backed by a google/btree.BTreeG,
// suitable for a primary or secondary tree index.
type BTreeIndex struct {
	def     memtx.IndexDef
	keyDef  memtx.KeyDef
	tree    *btree.BTreeG[memtx.Tuple]
	exclude func(memtx.Tuple) bool
	orphans []*memtx.GapReader
	refs    int32
}

// NewBTreeIndex builds an ordered index of the given degree (32 is a
// reasonable default absent other guidance). keyDef.Cmp must implement
// a strict weak ordering; the tree orders tuples by it.
func NewBTreeIndex(def memtx.IndexDef, keyDef memtx.KeyDef, degree int, exclude func(memtx.Tuple) bool) *BTreeIndex {
	less := func(a, b memtx.Tuple) bool { return keyDef.Cmp(a, b) < 0 }
	return &BTreeIndex{
		def:     def,
		keyDef:  keyDef,
		tree:    btree.NewG(degree, less),
		exclude: exclude,
	}
}

func (b *BTreeIndex) Def() *memtx.IndexDef { return &b.def }
func (b *BTreeIndex) KeyDef() *memtx.KeyDef { return &b.keyDef }
func (b *BTreeIndex) Ordered() bool         { return true }

func (b *BTreeIndex) KeyExcluded(t memtx.Tuple) bool {
	if b.exclude == nil {
		return false
	}
	return b.exclude(t)
}

func (b *BTreeIndex) OrphanGaps() []*memtx.GapReader { return b.orphans }
func (b *BTreeIndex) SetOrphanGaps(g []*memtx.GapReader) { b.orphans = g }

func (b *BTreeIndex) Ref()   { b.refs++ }
func (b *BTreeIndex) Unref() { b.refs-- }

// Replace implements memtx.Index.Replace: it deletes old (if non-nil),
// inserts new (if non-nil), and reports new's immediate in-order
// successor so the manager can migrate nearby-gap trackers onto it.
func (b *BTreeIndex) Replace(old, new memtx.Tuple, mode memtx.ReplaceMode) (removed, successor memtx.Tuple, err error) {
	if old != nil {
		if prev, ok := b.tree.Delete(old); ok {
			removed = prev
		}
	}
	if new == nil {
		return removed, nil, nil
	}
	if prev, ok := b.tree.ReplaceOrInsert(new); ok && removed == nil {
		removed = prev
	}
	b.tree.AscendGreaterOrEqual(new, func(item memtx.Tuple) bool {
		if item.Identity() == new.Identity() {
			return true
		}
		successor = item
		return false
	})
	return removed, successor, nil
}
