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

import "sort"

// SendToReadView moves txn into the read-view set pinned at psn. This
// is the mechanism that turns a later read into a pre-commit snapshot:
// the transaction keeps running, but every subsequent Clarify call
// treats prepared-but-not-yet-visible effects with PSN >= psn as if
// they hadn't happened.
//
// A transaction already in a deeper (smaller-psn) read view is left
// alone: rv_psn only ever tightens.
func (m *Manager) SendToReadView(txn *Txn, psn PSN) {
	if txn.status == TxnAborted || txn.status == TxnCommitted {
		return
	}
	if txn.status == TxnInReadView && txn.rvPSN <= psn {
		return
	}
	if txn.status != TxnInReadView {
		m.readViewSet = append(m.readViewSet, txn)
	}
	txn.status = TxnInReadView
	txn.rvPSN = psn
	m.sortReadViewSet()
}

// sortReadViewSet restores the invariant that the read-view set is
// sorted by rv_psn ascending.
func (m *Manager) sortReadViewSet() {
	sort.Slice(m.readViewSet, func(i, j int) bool {
		return m.readViewSet[i].rvPSN < m.readViewSet[j].rvPSN
	})
}

// lowestRVPSN returns the minimum rv_psn across read-view
// transactions, or the next PSN if none are in a read view.
func (m *Manager) lowestRVPSN() PSN {
	if len(m.readViewSet) == 0 {
		return m.nextPSN
	}
	return m.readViewSet[0].rvPSN
}

func (m *Manager) removeFromReadView(txn *Txn) {
	for i, t := range m.readViewSet {
		if t == txn {
			m.readViewSet = append(m.readViewSet[:i], m.readViewSet[i+1:]...)
			return
		}
	}
}

// AbortWithConflict kills txn. If txn was in the read-view set it is
// removed from it; its reader/gap/point-hole/count trackers are
// unlinked from every story and index they reference so no dangling
// back-reference survives, and its status is set to ABORTED so the
// host sees the failure the next time it inspects the transaction.
func (m *Manager) AbortWithConflict(txn *Txn) {
	if txn.status == TxnAborted {
		return
	}
	m.removeFromReadView(txn)
	m.clearTxnReadLists(txn)
	txn.status = TxnAborted
}

// clearTxnReadLists unlinks every tracker txn owns from the story or
// index it references, so no reader list or gap list anywhere
// references txn once it's gone.
func (m *Manager) clearTxnReadLists(txn *Txn) {
	for _, st := range txn.readSet {
		removeTxnFromReaderList(st, txn)
	}
	txn.readSet = nil

	for _, g := range txn.gapList {
		detachGap(g, g.Index)
	}
	txn.gapList = nil

	for _, p := range txn.pointHoles {
		pk := pointHoleKey{index: p.index, key: string(p.key)}
		removePointHole(m.pointHoles, pk, p)
	}
	txn.pointHoles = nil

	for _, c := range txn.countGaps {
		if c.story != nil {
			detachGap(&GapReader{Txn: txn, Index: c.index, story: c.story}, c.index)
		}
		removeCountTracker(m.countGaps, c.index, c)
	}
	txn.countGaps = nil

	for _, f := range txn.fullScans {
		removeFullScanTracker(m.fullScans, f.index, f)
	}
	txn.fullScans = nil
}

func removeTxnFromReaderList(st *Story, txn *Txn) {
	for i, r := range st.readerList {
		if r == txn {
			st.readerList = append(st.readerList[:i], st.readerList[i+1:]...)
			return
		}
	}
}

func removePointHole(m map[pointHoleKey][]*pointHoleTracker, key pointHoleKey, t *pointHoleTracker) {
	list := m[key]
	for i, c := range list {
		if c == t {
			m[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func removeCountTracker(m map[Index][]*countTracker, idx Index, t *countTracker) {
	list := m[idx]
	for i, c := range list {
		if c == t {
			m[idx] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func removeFullScanTracker(m map[Index][]*fullScanTracker, idx Index, t *fullScanTracker) {
	list := m[idx]
	for i, c := range list {
		if c == t {
			m[idx] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// conflictReaders sends every reader of st (other than exceptTxn) into
// a read view pinned at psn.
func (m *Manager) conflictReaders(st *Story, exceptTxn *Txn, psn PSN) {
	for _, r := range append([]*Txn(nil), st.readerList...) {
		if r == exceptTxn {
			continue
		}
		m.SendToReadView(r, psn)
	}
}

// conflictGapReaders sends every gap-reader attached to a chain head
// into a read view.
func (m *Manager) conflictGapReaders(st *Story, i int, exceptTxn *Txn, psn PSN) {
	for _, g := range append([]*GapReader(nil), st.links[i].readGaps...) {
		if g.Txn == exceptTxn {
			continue
		}
		m.SendToReadView(g.Txn, psn)
	}
}

// abortGapReaders aborts (rather than merely conflicting) every
// gap-reader attached to st's position in index i, used by rollback
// paths where the observed position is being destroyed outright.
func (m *Manager) abortGapReaders(st *Story, i int) {
	for _, g := range append([]*GapReader(nil), st.links[i].readGaps...) {
		m.AbortWithConflict(g.Txn)
	}
}

// abortReaders aborts every reader of st.
func (m *Manager) abortReaders(st *Story) {
	for _, r := range append([]*Txn(nil), st.readerList...) {
		m.AbortWithConflict(r)
	}
}
