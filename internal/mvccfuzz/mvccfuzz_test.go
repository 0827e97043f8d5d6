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

// Package mvccfuzz property-tests the transaction manager with
// randomized sequences of statements and commit/rollback decisions,
// checking that the manager's own invariant walk never trips.
package mvccfuzz

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/erigontech/memtx-mvcc"
	"github.com/erigontech/memtx-mvcc/memidx"
)

// row is a fuzz-test tuple: id is unique per instance (the Tuple
// identity contract requires uniqueness among live tuples), key is
// the value the index orders and compares on.
type row struct {
	id  uintptr
	key byte
}

func (r row) Identity() uintptr { return r.id }

func newSpace() (*memtx.Manager, *memtx.Space, memtx.Index) {
	m := memtx.New(memtx.WithGCStepsPerMutation(3))
	def := memtx.IndexDef{SpaceID: 1, DenseID: 0, Unique: true}
	keyDef := memtx.KeyDef{
		PartCount: 1,
		Cmp:       func(a, b memtx.Tuple) int { return int(a.(row).key) - int(b.(row).key) },
		Key:       func(t memtx.Tuple) []byte { return []byte{t.(row).key} },
		CmpKey: func(t memtx.Tuple, key []byte) int {
			if len(key) == 0 {
				return 1
			}
			return int(t.(row).key) - int(key[0])
		},
	}
	idx := memidx.NewBTreeIndex(def, keyDef, 16, nil)
	space := &memtx.Space{ID: 1, Name: "fuzz", Indexes: []memtx.Index{idx}}
	return m, space, idx
}

// TestRandomSchedulesPreserveInvariants drives the manager through
// random insert/delete/commit/rollback schedules over a small key
// domain and asserts the manager's own invariant walk stays clean
// throughout, and after a full GC drain at the end.
func TestRandomSchedulesPreserveInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m, space, idx := newSpace()
		var nextTxnID memtx.TxnID
		var nextTupleID uintptr = 1
		live := map[byte]row{}

		steps := rapid.IntRange(1, 40).Draw(rt, "numSteps")
		for i := 0; i < steps; i++ {
			kind := rapid.IntRange(0, 2).Draw(rt, "kind")
			key := byte(rapid.IntRange(0, 7).Draw(rt, "key"))
			rollback := rapid.Bool().Draw(rt, "rollback")

			nextTxnID++
			txn := m.RegisterTxn(nextTxnID, memtx.IsolationReadCommitted)
			stmt := &memtx.Statement{Space: space, Txn: txn}
			var committedInsert, committedDelete row
			var didInsert, didDelete bool

			switch kind {
			case 0, 1: // insert at key, only when no committed row holds it
				if _, ok := live[key]; ok {
					continue
				}
				nextTupleID++
				newRow := row{id: nextTupleID, key: key}
				if _, err := m.AddStmt(stmt, nil, newRow, memtx.ModeInsert); err == nil {
					committedInsert = newRow
					didInsert = true
				}
			default: // delete at key
				old, ok := live[key]
				if !ok {
					continue
				}
				if _, err := m.AddStmt(stmt, old, nil, memtx.ModeReplace); err == nil {
					committedDelete = old
					didDelete = true
				}
			}

			if !didInsert && !didDelete {
				m.FinishTxn(txn, memtx.TxnAborted)
				continue
			}

			if rollback {
				m.RollbackStmt(stmt)
				m.FinishTxn(txn, memtx.TxnAborted)
			} else {
				psn := m.AllocPSN()
				m.PrepareStmt(stmt, psn)
				m.CommitStmt(stmt)
				m.FinishTxn(txn, memtx.TxnCommitted)
				if didInsert {
					live[key] = committedInsert
				}
				if didDelete {
					delete(live, committedDelete.key)
				}
			}

			if errs := m.CheckInvariants(); len(errs) > 0 {
				rt.Fatalf("invariant violated after step %d: %v", i, errs[0])
			}
		}

		m.GC()
		if errs := m.CheckInvariants(); len(errs) > 0 {
			rt.Fatalf("invariant violated after final GC: %v", errs[0])
		}
		_ = idx
	})
}
