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

// linkGCRing appends st to the manager's global all-stories ring, so
// the crawler can advance an incremental cursor rather than re-walking
// a hash table each step.
func (m *Manager) linkGCRing(st *Story) {
	if m.gcHead == nil {
		m.gcHead, m.gcTail = st, st
		st.gcPrev, st.gcNext = nil, nil
		return
	}
	st.gcPrev = m.gcTail
	st.gcNext = nil
	m.gcTail.gcNext = st
	m.gcTail = st
}

// unlinkGCRing splices st out of the ring, moving the live cursor past
// it if the cursor currently points at st.
func (m *Manager) unlinkGCRing(st *Story) {
	if m.gcCursor == st {
		m.gcCursor = st.gcNext
	}
	if st.gcPrev != nil {
		st.gcPrev.gcNext = st.gcNext
	} else {
		m.gcHead = st.gcNext
	}
	if st.gcNext != nil {
		st.gcNext.gcPrev = st.gcPrev
	} else {
		m.gcTail = st.gcPrev
	}
	st.gcPrev, st.gcNext = nil, nil
}

// addGCBacklog credits the crawler with n additional steps to run the
// next time GCStep or GC is invoked.
func (m *Manager) addGCBacklog(n int64) {
	m.gcBacklog += n
}

// GCStep advances the incremental crawler by a bounded amount of work:
// it visits one story per unit of backlog starting from the saved
// cursor, wrapping to the head of the ring when it reaches the end (so
// a backlog larger than the ring revisits stories), classifying and,
// where safe, freeing each one. It preserves
// the chain-top invariant: the story currently representing an
// index's physical entry is never freed out from under it.
func (m *Manager) GCStep() {
	for m.gcBacklog > 0 && m.gcHead != nil {
		st := m.gcCursor
		if st == nil {
			st = m.gcHead
		}
		next := st.gcNext
		m.gcBacklog--
		m.stats.gcStepsRun++

		status, freeable := m.classify(st)
		st.status = status
		if freeable {
			m.unlinkFromIndexes(st)
			m.deleteStory(st)
			m.stats.gcStoriesFreed++
			m.gcCursor = next
			continue
		}
		m.gcCursor = next
	}
}

// unlinkFromIndexes detaches a freeable story from every index's chain.
// Where the story is still a chain head (a committed delete nobody
// else resolved), its tuple is physically removed from the index
// first via index.Replace(tuple, nil, ...), so a later lookup can't
// resurface a deleted tuple whose story has already been freed.
func (m *Manager) unlinkFromIndexes(st *Story) {
	for i := range st.links {
		if st.links[i].inIndex {
			idx := st.space.Indexes[i]
			if _, _, err := idx.Replace(st.tuple, nil, ModeReplace); err != nil {
				panic("memtx: gc failed to remove freeable story's tuple from index: " + err.Error())
			}
			st.links[i].inIndex = false
		}
		unlink(st, i)
	}
}

// GC drains the entire backlog, running GCStep repeatedly until no
// credited work remains. Tests and maintenance tooling use this to
// observe a fully quiesced story set; the manager's own callers are
// expected to rely on the incremental GCStep instead.
func (m *Manager) GC() {
	for m.gcBacklog > 0 {
		before := m.gcBacklog
		m.GCStep()
		if m.gcBacklog >= before {
			break
		}
	}
}

// classify decides what, if anything, is still keeping st alive: an
// in-progress statement (USED), a reader that might still need this
// exact version (READ_VIEW), an attached gap tracker (TRACK_GAP), or
// nothing, in which case st is freeable.
func (m *Manager) classify(st *Story) (StoryStatus, bool) {
	if st.addStmt != nil || st.delStmt != nil {
		return StoryUsed, false
	}

	low := m.lowestRVPSN()

	for i := range st.links {
		if st.links[i].inIndex && st.delPSN == PSNUnassigned {
			// Still the live row physically present in this index.
			return StoryUsed, false
		}
		if len(st.links[i].readGaps) > 0 {
			return StoryTrackGap, false
		}
	}

	if len(st.readerList) > 0 {
		return StoryReadView, false
	}

	// A story added and deleted entirely within the history preserved
	// for existing read views is still needed until every such view
	// has advanced past it.
	if st.delPSN != PSNUnassigned && st.delPSN != RollbackedPSN && st.delPSN >= low {
		return StoryReadView, false
	}
	if st.addPSN != PSNUnassigned && st.addPSN >= low {
		return StoryReadView, false
	}

	return StoryUnclassified, true
}
