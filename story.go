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

import "github.com/cespare/xxhash/v2"

// StoryStatus classifies why GC is keeping a story alive; it is
// advisory, written only by the GC crawler for observability.
type StoryStatus uint8

const (
	StoryUnclassified StoryStatus = iota
	StoryUsed
	StoryReadView
	StoryTrackGap
)

// storyLink is one index's worth of chain membership for a Story.
type storyLink struct {
	older, newer *Story
	readGaps     []*GapReader
	inIndex      bool // true iff this story's tuple is the one physically present in index i
}

// Story is a version of one tuple in one space at one point in its
// life.
type Story struct {
	space *Space
	tuple Tuple

	addStmt *Statement
	addPSN  PSN

	delStmt *Statement // head of the in-progress deleters list
	delPSN  PSN

	links []storyLink // one per space.Indexes

	readerList []*Txn
	status     StoryStatus

	tupleIsRetained bool

	// gcPrev/gcNext thread this story into the manager's global,
	// all-stories ring so the GC crawler (C8) can advance an
	// incremental cursor over every story without a full hash-table
	// walk each step.
	gcPrev, gcNext *Story
}

func (s *Story) addVisible() bool { return s.addStmt == nil && s.addPSN == PSNUnassigned }

// identity hashes a tuple's stable pointer-sized identity with a
// robust, order-independent mix.
func identity(t Tuple) uint64 {
	var buf [8]byte
	id := t.Identity()
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// newStory allocates a Story for tuple in space, flags the tuple
// dirty by registering it in the primary hash, and bumps the GC
// backlog by the configured step constant.
func (m *Manager) newStory(space *Space, tuple Tuple) *Story {
	st := m.storyPool.get()
	*st = Story{
		space: space,
		tuple: tuple,
		links: make([]storyLink, len(space.Indexes)),
	}
	m.storiesByTuple[identity(tuple)] = st
	m.dirty[tuple.Identity()] = struct{}{}
	m.linkGCRing(st)
	m.addGCBacklog(m.cfg.GCStepsPerMutation)
	m.stats.storiesLive++
	m.stats.storiesAllocated++
	return st
}

// getStory looks up the Story for a dirty tuple; callers must check
// isDirty first.
func (m *Manager) getStory(tuple Tuple) *Story {
	return m.storiesByTuple[identity(tuple)]
}

// isDirty reports whether tuple currently has a live Story.
func (m *Manager) isDirty(tuple Tuple) bool {
	_, ok := m.dirty[tuple.Identity()]
	return ok
}

// deleteStory frees a story; callers must have already unlinked it
// from every index's chain.
func (m *Manager) deleteStory(st *Story) {
	delete(m.storiesByTuple, identity(st.tuple))
	delete(m.dirty, st.tuple.Identity())
	m.unlinkGCRing(st)
	if m.funcKeys != nil {
		m.funcKeys.forgetStory(st)
	}
	m.stats.storiesLive--
	*st = Story{}
	m.storyPool.put(st)
}

// link places newSt directly above oldSt in index i's chain (newer ->
// older), without touching the physical index.
func link(newSt, oldSt *Story, i int) {
	newSt.links[i].older = oldSt
	if oldSt != nil {
		oldSt.links[i].newer = newSt
	}
}

// unlink removes st from index i's chain, splicing its neighbors
// together.
func unlink(st *Story, i int) {
	older, newer := st.links[i].older, st.links[i].newer
	if newer != nil {
		newer.links[i].older = older
	}
	if older != nil {
		older.links[i].newer = newer
	}
	st.links[i].older = nil
	st.links[i].newer = nil
}

// reorder swaps two adjacent stories in index i's chain, where newSt
// is currently newer than oldSt; used by PrepareStmt to sink a newly
// prepared story into the prepared stratum.
func reorder(newSt, oldSt *Story, i int) {
	above := newSt.links[i].newer
	below := oldSt.links[i].older

	oldSt.links[i].newer = above
	if above != nil {
		above.links[i].older = oldSt
	}
	newSt.links[i].older = below
	if below != nil {
		below.links[i].newer = newSt
	}
	newSt.links[i].newer = oldSt
	oldSt.links[i].older = newSt
}

// linkTop promotes newSt to chain head of index i, re-binding the
// physical index entry when isNewTuple is false (i.e. newSt is taking
// over from an existing story rather than being a brand-new
// insertion), and moves the demoted head's read-gaps list onto the
// new head, since gap observations track positions and the position
// is now represented by the new head.
func (m *Manager) linkTop(index Index, newSt, oldSt *Story, i int, isNewTuple bool) error {
	if oldSt != nil {
		if !isNewTuple {
			if _, _, err := index.Replace(oldSt.tuple, newSt.tuple, ModeReplace); err != nil {
				return err
			}
		}
		oldSt.links[i].inIndex = false
		for _, g := range oldSt.links[i].readGaps {
			g.story = newSt
		}
		newSt.links[i].readGaps = append(newSt.links[i].readGaps, oldSt.links[i].readGaps...)
		oldSt.links[i].readGaps = nil
		link(newSt, oldSt, i)
	}
	newSt.links[i].inIndex = true
	return nil
}
