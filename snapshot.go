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

// SnapshotCleaner is a throwaway, read-only view pinned at a fixed PSN
// boundary, used by a checkpoint writer to see a stable snapshot of
// every space without blocking concurrent transactions and without
// itself being treated as an ordinary reader that the GC crawler must
// keep history alive for indefinitely.
//
// It is deliberately not a *Txn: it never appears in the read-view
// set, never registers as a story reader, and Clarify calls made
// through it never call registerReader, so it cannot itself hold the
// GC crawler back. Its consistency instead comes from the fixed psn
// boundary the caller took when the checkpoint began.
type SnapshotCleaner struct {
	m   *Manager
	psn PSN
}

// CreateSnapshotCleaner pins a cleaner at the manager's current PSN
// frontier. Every story with addPSN (or delPSN, for a deletion) below
// that frontier is visible to it; anything prepared or committed after
// is not, exactly as if a transaction had started at that instant and
// never issued a statement of its own.
func (m *Manager) CreateSnapshotCleaner() *SnapshotCleaner {
	return &SnapshotCleaner{m: m, psn: m.nextPSN}
}

// Clarify resolves story to the tuple visible at the cleaner's pinned
// boundary. It always allows prepared effects: a prepared-but-
// uncommitted head is exactly what a null reader projects to.
func (c *SnapshotCleaner) Clarify(index Index, story *Story) Tuple {
	if story == nil {
		return nil
	}
	i := index.Def().DenseID
	for cur := story; cur != nil; cur = cur.links[i].older {
		if visible, _ := deleteVisible(cur, nil, true, c.psn); visible {
			return nil
		}
		if visible, _ := insertVisible(cur, nil, true, c.psn); visible {
			return cur.tuple
		}
	}
	return nil
}

// Destroy releases the cleaner. It holds no resources of its own
// beyond the pinned psn, so this is a no-op kept for symmetry with the
// source's create/destroy pairing and to give callers an explicit
// point to stop using the cleaner.
func (c *SnapshotCleaner) Destroy() {
	c.m = nil
}
