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
	"bytes"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/memtx-mvcc"
)

// NewFuncKeyIndex builds an ordered Index whose key is a cached,
// user-supplied expression rather than a plain field extraction.
// Multikey expressions are out of scope (keyDef.MultikeyFunc is
// always false here): the manager
// rejects multikey functional-index statements explicitly rather than
// silently picking one key, per the module's own KeyDef.MultikeyFunc
// contract.
//
// expr is memoized per tuple identity in an LRU of the given size,
// since a functional index's expression can be arbitrarily expensive
// and memtx.Clarify may re-derive the same tuple's key many times
// while walking a chain.
func NewFuncKeyIndex(def memtx.IndexDef, expr func(memtx.Tuple) []byte, cacheSize, degree int) *BTreeIndex {
	cache, err := lru.New[uintptr, []byte](cacheSize)
	if err != nil {
		panic("memidx: invalid func-key index cache size: " + err.Error())
	}
	cachedExpr := func(t memtx.Tuple) []byte {
		if v, ok := cache.Get(t.Identity()); ok {
			return v
		}
		v := expr(t)
		cache.Add(t.Identity(), v)
		return v
	}
	keyDef := memtx.KeyDef{
		PartCount:    1,
		ForFuncIndex: true,
		Cmp:          func(a, b memtx.Tuple) int { return bytes.Compare(cachedExpr(a), cachedExpr(b)) },
		Key:          cachedExpr,
		CmpKey:       func(t memtx.Tuple, key []byte) int { return bytes.Compare(cachedExpr(t), key) },
	}
	return NewBTreeIndex(def, keyDef, degree, nil)
}
