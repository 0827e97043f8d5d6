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

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// CheckInvariants walks every live story and the read-view set,
// verifying the properties this package's tests hold it to: the
// chain-top invariant (at most one in-index story per chain; a chain
// with no in-index story is not reported), a
// sorted read-view set, and the absence of dangling tracker
// back-references for any transaction not actually in progress. It is
// O(live stories) and is meant for test and debug use, not the hot
// path.
func (m *Manager) CheckInvariants() []error {
	var errs []error

	touched := mapset.NewThreadUnsafeSet[*Txn]()

	for st := m.gcHead; st != nil; st = st.gcNext {
		for _, r := range st.readerList {
			touched.Add(r)
			if r.status == TxnCommitted || r.status == TxnAborted {
				errs = append(errs, fmt.Errorf("memtx: story %p retains reader of finished txn %d", st, r.ID))
			}
		}
	}

	// Chain-top invariant: walk each distinct chain exactly once by
	// starting from every story whose links[i].newer is nil (the head)
	// and counting in-index stories encountered while walking down the
	// older links; visiting from the head instead of an arbitrary story avoids
	// double-counting a chain reached from two different starting
	// points.
	seen := make(map[*Story]bool)
	for st := m.gcHead; st != nil; st = st.gcNext {
		for i := range st.links {
			if st.links[i].newer != nil {
				continue
			}
			count := 0
			for cur := st; cur != nil; cur = cur.links[i].older {
				if seen[cur] {
					break
				}
				if cur.links[i].inIndex {
					count++
				}
			}
			if count > 1 {
				errs = append(errs, fmt.Errorf("memtx: chain at index %d headed by story %p has %d in-index stories, want at most 1", i, st, count))
			}
		}
		seen[st] = true
	}

	for idx := 1; idx < len(m.readViewSet); idx++ {
		if m.readViewSet[idx-1].rvPSN > m.readViewSet[idx].rvPSN {
			errs = append(errs, fmt.Errorf("memtx: read-view set not sorted at index %d", idx))
			break
		}
	}

	for _, txn := range m.readViewSet {
		if txn.status != TxnInReadView {
			errs = append(errs, fmt.Errorf("memtx: read-view set contains txn %d with status %d", txn.ID, txn.status))
		}
	}

	return errs
}

// HistoryDigest folds every story's (addPSN, delPSN) pair into a
// single 256-bit value, giving tests a cheap way to assert that two
// independently constructed histories ended up identical without
// comparing chain pointers directly.
func (m *Manager) HistoryDigest() *uint256.Int {
	acc := new(uint256.Int)
	var tmp uint256.Int
	for st := m.gcHead; st != nil; st = st.gcNext {
		tmp.SetUint64(uint64(st.addPSN))
		acc.Add(acc, &tmp)
		tmp.SetUint64(uint64(st.delPSN))
		acc.Mul(acc, uint256.NewInt(31))
		acc.Add(acc, &tmp)
	}
	return acc
}
