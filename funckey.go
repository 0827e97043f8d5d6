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

package memtx

import lru "github.com/hashicorp/golang-lru/v2"

type funcKeyEntry struct {
	tupleID uintptr
	indexID int
}

// funcKeyCache memoizes the key bytes a functional index's expression
// produces for a tuple, computing them on the first Get. No code in
// this package calls Get: Clarify and the statement lifecycle never
// consult the cache, and only forgetStory runs. Entries are invalidated
// wholesale for a tuple's identity when its story is freed, since a
// freed story's key bytes can never be consulted again.
type funcKeyCache struct {
	cache *lru.Cache[funcKeyEntry, []byte]
	byTup map[uintptr][]funcKeyEntry
}

func newFuncKeyCache(size int) *funcKeyCache {
	c, err := lru.New[funcKeyEntry, []byte](size)
	if err != nil {
		// size <= 0 is rejected by lru.New; callers only reach this
		// path with a positive Config.FuncKeyCacheSize (New checks it).
		panic("memtx: invalid func-key cache size: " + err.Error())
	}
	return &funcKeyCache{cache: c, byTup: make(map[uintptr][]funcKeyEntry)}
}

// Get returns the cached key for (tuple, indexID), computing and
// storing it via compute on a miss.
func (fc *funcKeyCache) Get(t Tuple, indexID int, compute func(Tuple) []byte) []byte {
	key := funcKeyEntry{tupleID: t.Identity(), indexID: indexID}
	if v, ok := fc.cache.Get(key); ok {
		return v
	}
	v := compute(t)
	fc.cache.Add(key, v)
	fc.byTup[key.tupleID] = append(fc.byTup[key.tupleID], key)
	return v
}

// forgetStory evicts every cache entry keyed to st's tuple, called
// when st is freed by the garbage collector.
func (fc *funcKeyCache) forgetStory(st *Story) {
	id := st.tuple.Identity()
	for _, key := range fc.byTup[id] {
		fc.cache.Remove(key)
	}
	delete(fc.byTup, id)
}
