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

import "sync"

// pool is a fixed-size object pool for one record kind (C1: "Fixed-size
// object pools per record kind"). It wraps sync.Pool with live/allocated
// counters; Manager.Statistics does not read them (its story counts come
// from the manager's own Stats fields).
type pool[T any] struct {
	p       sync.Pool
	live    int64
	allocs  int64
	newFunc func() *T
}

func newPool[T any](newFunc func() *T) *pool[T] {
	pl := &pool[T]{newFunc: newFunc}
	pl.p.New = func() any { return newFunc() }
	return pl
}

func (pl *pool[T]) get() *T {
	v := pl.p.Get().(*T)
	pl.live++
	pl.allocs++
	return v
}

func (pl *pool[T]) put(v *T) {
	pl.live--
	pl.p.Put(v)
}

// Arena is a per-transaction region-style allocator owning
// variable-length tracker payloads (saved keys, etc). It is not freed
// incrementally: a checkpoint/truncate pair lets a caller revert
// allocations made during a scoped operation (nothing in this package
// calls them), and the whole arena is torn down when the transaction
// finishes.
type Arena struct {
	bufs [][]byte
}

// Checkpoint returns a mark that Truncate can later roll back to.
func (a *Arena) Checkpoint() int { return len(a.bufs) }

// Truncate discards every allocation made since mark.
func (a *Arena) Truncate(mark int) {
	for i := mark; i < len(a.bufs); i++ {
		a.bufs[i] = nil
	}
	a.bufs = a.bufs[:mark]
}

// Alloc copies src into a new arena-owned slice and returns it. Tracker
// payloads (saved keys) are copied so the caller's buffer can be
// reused immediately.
func (a *Arena) Alloc(src []byte) []byte {
	buf := make([]byte, len(src))
	copy(buf, src)
	a.bufs = append(a.bufs, buf)
	return buf
}

// Reset tears the arena down entirely; called on commit/rollback of
// the owning transaction.
func (a *Arena) Reset() { a.bufs = nil }
