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

// Clarify resolves a dirty tuple to the tuple visible to txn, walking
// story's chain in index from newest to oldest.
// track controls whether a resulting visible story records txn as a
// reader; pass false for internal, non-read-tracking visibility checks
// (e.g. the bounds used by IndexInvisibleCountMatchingUntil).
//
// txn == nil models an autocommit read with no transaction context.
func (m *Manager) Clarify(txn *Txn, space *Space, story *Story, index Index, track bool) Tuple {
	if story == nil {
		return nil
	}
	i := index.Def().DenseID
	allowPrepared := m.allowPrepared(txn, space)
	rv := rvPSN(txn)

	for cur := story; cur != nil; cur = cur.links[i].older {
		delVisible, delSkipped := deleteVisible(cur, txn, allowPrepared, rv)
		if delVisible {
			return nil
		}
		insVisible, insSkipped := insertVisible(cur, txn, allowPrepared, rv)
		if insVisible {
			if track && txn != nil {
				registerReader(cur, txn)
			}
			return cur.tuple
		}
		if txn != nil {
			if delSkipped {
				m.SendToReadView(txn, cur.delPSN)
			}
			if insSkipped {
				m.SendToReadView(txn, cur.addPSN)
			}
		}
	}
	return nil
}

// allowPrepared implements the per-isolation rule for whether a
// reader may observe a prepared-but-uncommitted effect.
func (m *Manager) allowPrepared(txn *Txn, space *Space) bool {
	if space != nil && space.System {
		return true
	}
	if txn == nil {
		return false
	}
	switch txn.isolation {
	case IsolationReadCommitted:
		return true
	case IsolationReadConfirmed, IsolationLinearizable:
		return false
	case IsolationBestEffort:
		return txn.issuedStatement
	default:
		return false
	}
}

// rvPSN returns txn.rv_psn when txn is in a read view, +infinity
// otherwise, and +infinity for a nil (autocommit) txn.
func rvPSN(txn *Txn) PSN {
	if txn == nil {
		return psnInfinity
	}
	return txn.RVPSN()
}

// deleteVisible implements the delete-visibility predicate.
// skipped reports whether a prepared-or-committed delete exists here
// that is simply not visible yet to this reader (as opposed to there
// being no delete at all) — the signal clarify uses to decide whether
// to pin the reader into a read view.
func deleteVisible(st *Story, txn *Txn, allowPrepared bool, rv PSN) (visible, skipped bool) {
	for d := st.delStmt; d != nil; d = d.nextInDelList {
		if d.Txn == txn {
			return true, false
		}
	}
	if st.delPSN == PSNUnassigned {
		return false, false
	}
	if st.delStmt != nil {
		// Prepared by someone else, not yet committed.
		if allowPrepared && st.delPSN < rv {
			return true, false
		}
		return false, true
	}
	// Committed.
	if st.delPSN < rv {
		return true, false
	}
	return false, true
}

// insertVisible implements the insert-visibility predicate,
// symmetric to deleteVisible. A story with neither add_stmt nor
// add_psn is "added long ago" and always insert-visible.
func insertVisible(st *Story, txn *Txn, allowPrepared bool, rv PSN) (visible, skipped bool) {
	if st.addStmt == nil && st.addPSN == PSNUnassigned {
		return true, false
	}
	if st.addStmt != nil && st.addStmt.Txn == txn {
		return true, false
	}
	if st.addPSN == PSNUnassigned {
		return false, false
	}
	if st.addStmt != nil {
		if allowPrepared && st.addPSN < rv {
			return true, false
		}
		return false, true
	}
	if st.addPSN < rv {
		return true, false
	}
	return false, true
}

func registerReader(st *Story, txn *Txn) {
	for _, r := range st.readerList {
		if r == txn {
			return
		}
	}
	st.readerList = append(st.readerList, txn)
	for _, s := range txn.readSet {
		if s == st {
			return
		}
	}
	txn.readSet = append(txn.readSet, st)
}
