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

// InvalidateSpace aborts every transaction that holds a reader or a gap
// tracker against space, except the DDL owner itself, then compacts
// space's history down to the state the owner sees. A DDL change makes
// every other outstanding read of the old definition unsafe to keep
// running, and the space's stories are folded back into the physical
// index once nothing else can observe them.
func (m *Manager) InvalidateSpace(space *Space) {
	owner, hasOwner := m.ddlOwners[space.ID]

	victims := make(map[*Txn]struct{})

	for _, st := range m.storiesByTuple {
		if st.space != space {
			continue
		}
		for _, r := range st.readerList {
			victims[r] = struct{}{}
		}
		for i := range st.links {
			for _, g := range st.links[i].readGaps {
				victims[g.Txn] = struct{}{}
			}
		}
	}
	indexSet := make(map[Index]bool, len(space.Indexes))
	for _, idx := range space.Indexes {
		indexSet[idx] = true
		for _, g := range idx.OrphanGaps() {
			victims[g.Txn] = struct{}{}
		}
		for _, c := range m.countGaps[idx] {
			victims[c.txn] = struct{}{}
		}
		for _, f := range m.fullScans[idx] {
			victims[f.txn] = struct{}{}
		}
	}
	for pk, list := range m.pointHoles {
		if pk.index == nil || !indexSet[pk.index] {
			continue
		}
		for _, p := range list {
			victims[p.txn] = struct{}{}
		}
	}
	if hasOwner {
		delete(victims, owner)
	}

	for txn := range victims {
		m.AbortWithConflict(txn)
	}

	if hasOwner {
		m.compactSpace(space, owner)
	} else {
		m.compactSpace(space, nil)
	}
}

// sameTuple reports whether a and b refer to the same tuple identity,
// treating nil as its own distinct identity.
func sameTuple(a, b Tuple) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Identity() == b.Identity()
}

// compactSpace collapses every chain in space down to the single tuple
// (if any) visible to owner, writes that tuple back as the index's
// physical entry, and tears down every story the space still holds. It
// must only run after every other observer of space has already been
// aborted, since it destroys the version history those observers
// would have needed.
func (m *Manager) compactSpace(space *Space, owner *Txn) {
	var cleaner *SnapshotCleaner
	if owner == nil {
		cleaner = m.CreateSnapshotCleaner()
		defer cleaner.Destroy()
	}

	var stories []*Story
	for _, st := range m.storiesByTuple {
		if st.space == space {
			stories = append(stories, st)
		}
	}

	for i, idx := range space.Indexes {
		visited := make(map[*Story]bool)
		for _, st := range stories {
			if visited[st] {
				continue
			}
			head := st
			for head.links[i].newer != nil {
				head = head.links[i].newer
			}
			var current Tuple
			for cur := head; cur != nil; cur = cur.links[i].older {
				visited[cur] = true
				if cur.links[i].inIndex {
					current = cur.tuple
				}
			}

			var resolved Tuple
			if owner != nil {
				resolved = m.Clarify(owner, space, head, idx, false)
			} else {
				resolved = cleaner.Clarify(idx, head)
			}

			if !sameTuple(current, resolved) {
				if _, _, err := idx.Replace(current, resolved, ModeReplaceOrInsert); err != nil {
					panic("memtx: space compaction failed to reconcile index entry: " + err.Error())
				}
			}
		}
	}

	for _, st := range stories {
		for i := range st.links {
			unlink(st, i)
		}
		m.deleteStory(st)
	}
}
