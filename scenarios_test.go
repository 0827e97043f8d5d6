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

package memtx_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/memtx-mvcc"
	"github.com/erigontech/memtx-mvcc/memidx"
)

type intRow int64

func (r intRow) Identity() uintptr { return uintptr(r) }

func newIntSpace(t *testing.T) (*memtx.Manager, *memtx.Space, memtx.Index) {
	t.Helper()
	m := memtx.New()
	def := memtx.IndexDef{SpaceID: 1, DenseID: 0, Unique: true}
	keyDef := memtx.KeyDef{
		PartCount: 1,
		Cmp:       func(a, b memtx.Tuple) int { return int(a.(intRow) - b.(intRow)) },
		Key:       func(t memtx.Tuple) []byte { return []byte{byte(t.(intRow))} },
		CmpKey: func(t memtx.Tuple, key []byte) int {
			if len(key) == 0 {
				return 1
			}
			return int(byte(t.(intRow))) - int(key[0])
		},
	}
	idx := memidx.NewBTreeIndex(def, keyDef, 16, nil)
	space := &memtx.Space{ID: 1, Name: "t", Indexes: []memtx.Index{idx}}
	return m, space, idx
}

func commitInsert(t *testing.T, m *memtx.Manager, space *memtx.Space, txn *memtx.Txn, v intRow) *memtx.Statement {
	t.Helper()
	stmt := &memtx.Statement{Space: space, Txn: txn}
	_, err := m.AddStmt(stmt, nil, v, memtx.ModeInsert)
	require.NoError(t, err)
	psn := m.AllocPSN()
	m.PrepareStmt(stmt, psn)
	m.CommitStmt(stmt)
	return stmt
}

// A write committed before a reader's transaction began is visible to
// it immediately.
func TestCommittedInsertIsVisibleToLaterReader(t *testing.T) {
	m, space, idx := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := commitInsert(t, m, space, writer, 7)
	m.FinishTxn(writer, memtx.TxnCommitted)

	reader := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	got := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Equal(t, intRow(7), got)
}

// A transaction never observes its own in-progress insert as absent,
// and an uncommitted insert from another transaction under confirmed
// (snapshot) isolation stays invisible.
func TestUncommittedInsertInvisibleUnderConfirmedIsolation(t *testing.T) {
	m, space, idx := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := &memtx.Statement{Space: space, Txn: writer}
	_, err := m.AddStmt(stmt, nil, intRow(3), memtx.ModeInsert)
	require.NoError(t, err)

	reader := m.RegisterTxn(2, memtx.IsolationReadConfirmed)
	got := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Nil(t, got)

	self := m.Clarify(writer, space, stmt.AddStory, idx, true)
	require.Equal(t, intRow(3), self)
}

// A second INSERT of an already-committed key fails with a
// duplicate-key error rather than silently overwriting it.
func TestDuplicateInsertFailsAfterFirstCommits(t *testing.T) {
	m, space, _ := newIntSpace(t)

	first := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	commitInsert(t, m, space, first, 9)
	m.FinishTxn(first, memtx.TxnCommitted)

	second := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	s2 := &memtx.Statement{Space: space, Txn: second}
	_, err := m.AddStmt(s2, nil, intRow(9), memtx.ModeInsert)
	require.ErrorIs(t, err, memtx.ErrDuplicateKey)
}

// Rolling back a replace leaves the originally committed tuple visible
// to a later reader through its own story.
func TestRollbackRestoresDisplacedTuple(t *testing.T) {
	m, space, idx := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := commitInsert(t, m, space, writer, 5)
	m.FinishTxn(writer, memtx.TxnCommitted)

	replacer := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	rstmt := &memtx.Statement{Space: space, Txn: replacer}
	old, err := m.AddStmt(rstmt, nil, intRow(5), memtx.ModeReplace)
	require.NoError(t, err)
	require.Equal(t, intRow(5), old)

	m.RollbackStmt(rstmt)
	m.FinishTxn(replacer, memtx.TxnAborted)

	reader := m.RegisterTxn(3, memtx.IsolationReadCommitted)
	got := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Equal(t, intRow(5), got)
}

// A committed delete is invisible once its PSN precedes the reader's
// read-view frontier, and the row disappears for a fresh reader too.
func TestCommittedDeleteHidesTuple(t *testing.T) {
	m, space, idx := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := commitInsert(t, m, space, writer, 11)
	m.FinishTxn(writer, memtx.TxnCommitted)

	deleter := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	dstmt := &memtx.Statement{Space: space, Txn: deleter}
	_, err := m.AddStmt(dstmt, intRow(11), nil, memtx.ModeReplace)
	require.NoError(t, err)
	psn := m.AllocPSN()
	m.PrepareStmt(dstmt, psn)
	m.CommitStmt(dstmt)
	m.FinishTxn(deleter, memtx.TxnCommitted)

	reader := m.RegisterTxn(3, memtx.IsolationReadCommitted)
	got := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Nil(t, got)
}

// Invariant walk: a scripted insert/commit/delete/commit cycle never
// leaves more than one in-index story per chain, and the read-view set
// stays sorted.
func TestInvariantsHoldAcrossLifecycle(t *testing.T) {
	m, space, _ := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := commitInsert(t, m, space, writer, 1)
	m.FinishTxn(writer, memtx.TxnCommitted)
	require.Empty(t, m.CheckInvariants())

	deleter := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	dstmt := &memtx.Statement{Space: space, Txn: deleter}
	_, err := m.AddStmt(dstmt, intRow(1), nil, memtx.ModeReplace)
	require.NoError(t, err)
	psn := m.AllocPSN()
	m.PrepareStmt(dstmt, psn)
	m.CommitStmt(dstmt)
	m.FinishTxn(deleter, memtx.TxnCommitted)
	require.Empty(t, m.CheckInvariants())

	_ = stmt
	m.GC()
	require.Empty(t, m.CheckInvariants())
}

// A reader that observed a tuple before a conflicting write prepares
// is pinned into a read view rather than seeing the new effect, once
// it next consults the manager.
func TestReaderIsPinnedIntoReadViewOnConflict(t *testing.T) {
	m, space, idx := newIntSpace(t)

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := commitInsert(t, m, space, writer, 2)
	m.FinishTxn(writer, memtx.TxnCommitted)

	reader := m.RegisterTxn(2, memtx.IsolationReadConfirmed)
	got := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Equal(t, intRow(2), got)
	require.Equal(t, memtx.TxnInProgress, reader.Status())

	deleter := m.RegisterTxn(3, memtx.IsolationReadCommitted)
	dstmt := &memtx.Statement{Space: space, Txn: deleter}
	_, err := m.AddStmt(dstmt, intRow(2), nil, memtx.ModeReplace)
	require.NoError(t, err)
	psn := m.AllocPSN()
	m.PrepareStmt(dstmt, psn)

	require.Equal(t, memtx.TxnInReadView, reader.Status())

	m.CommitStmt(dstmt)
	m.FinishTxn(deleter, memtx.TxnCommitted)

	stillVisible := m.Clarify(reader, space, stmt.AddStory, idx, true)
	require.Equal(t, intRow(2), stillVisible)
}
