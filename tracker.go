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

import "bytes"

// trackerOrigin records how a GapReader came to exist: a genuine
// nearby-gap read, or a point-hole or count-gap that was later
// converted/promoted into one. It is kept for diagnostics only; no
// rollback or GC path branches on it.
type trackerOrigin uint8

const (
	originGap trackerOrigin = iota
	originPointConverted
	originCountPromoted
)

// GapReader is a nearby-gap tracker: a transaction observed an empty
// range between two adjacent index entries. It is attached either to
// the successor story's read_gaps list or, if no successor exists yet,
// to the index's orphan-gap list.
type GapReader struct {
	Txn       *Txn
	Index     Index
	IterType  IterType
	Key       []byte
	PartCount int

	story  *Story
	origin trackerOrigin
}

// pointHoleTracker is a point-hole tracker: a transaction read a full
// unique key and saw nothing.
type pointHoleTracker struct {
	txn   *Txn
	index Index
	key   []byte
}

type pointHoleKey struct {
	index Index
	key   string
}

// fullScanTracker is a full-scan tracker: an exhaustive scan of an
// unordered index.
type fullScanTracker struct {
	txn   *Txn
	index Index
}

// countTracker is a count-gap tracker: a count by (type, key) up to an
// optional tuple bound. untilHint memoizes the story the bound
// resolved to, so a recount need not re-walk the chain.
type countTracker struct {
	txn       *Txn
	index     Index
	iterType  IterType
	key       []byte
	partCount int
	until     []byte
	untilHint *Story

	story *Story // set once promoted to gap-reader of a matching new story
}

// TrackPoint records that txn queried key in index and found nothing.
func (m *Manager) TrackPoint(txn *Txn, index Index, key []byte) {
	t := &pointHoleTracker{txn: txn, index: index, key: txn.arena.Alloc(key)}
	txn.pointHoles = append(txn.pointHoles, t)
	pk := pointHoleKey{index: index, key: string(t.key)}
	m.pointHoles[pk] = append(m.pointHoles[pk], t)
}

// TrackGap records that txn's range scan found no hit between two
// adjacent entries, attaching the observation to successor's read_gaps
// list (or the index's orphan list if successor is nil).
func (m *Manager) TrackGap(txn *Txn, index Index, iterType IterType, key []byte, partCount int, successor *Story) *GapReader {
	g := &GapReader{
		Txn:       txn,
		Index:     index,
		IterType:  iterType,
		Key:       txn.arena.Alloc(key),
		PartCount: partCount,
		story:     successor,
	}
	m.attachGap(g, successor, index)
	txn.gapList = append(txn.gapList, g)
	return g
}

func (m *Manager) attachGap(g *GapReader, successor *Story, index Index) {
	if successor != nil {
		i := index.Def().DenseID
		successor.links[i].readGaps = append(successor.links[i].readGaps, g)
		return
	}
	index.SetOrphanGaps(append(index.OrphanGaps(), g))
}

func detachGap(g *GapReader, index Index) {
	var list *[]*GapReader
	if g.story != nil {
		list = &g.story.links[index.Def().DenseID].readGaps
	} else {
		orphans := index.OrphanGaps()
		list = &orphans
		defer func() { index.SetOrphanGaps(*list) }()
	}
	for idx, cand := range *list {
		if cand == g {
			*list = append((*list)[:idx], (*list)[idx+1:]...)
			break
		}
	}
}

// TrackFullScan records an exhaustive scan of an unordered index.
func (m *Manager) TrackFullScan(txn *Txn, index Index) {
	t := &fullScanTracker{txn: txn, index: index}
	txn.fullScans = append(txn.fullScans, t)
	m.fullScans[index] = append(m.fullScans[index], t)
}

// TrackCountUntil records a count-gap observation.
func (m *Manager) TrackCountUntil(txn *Txn, index Index, iterType IterType, key []byte, partCount int, until []byte, untilHint *Story) *countTracker {
	t := &countTracker{
		txn:       txn,
		index:     index,
		iterType:  iterType,
		key:       txn.arena.Alloc(key),
		partCount: partCount,
		until:     txn.arena.Alloc(until),
		untilHint: untilHint,
	}
	txn.countGaps = append(txn.countGaps, t)
	m.countGaps[index] = append(m.countGaps[index], t)
	return t
}

// countMatches reports whether a newly-inserted tuple's key matches a
// count tracker's (type, key) bound.
func (kd *KeyDef) countMatches(t *countTracker, newTuple Tuple) bool {
	if kd.Cmp == nil || kd.Key == nil {
		return false
	}
	key := kd.Key(newTuple)
	cmp := bytes.Compare(key, t.key)
	switch t.iterType {
	case IterEQ, IterREQ:
		return cmp == 0
	case IterGT:
		return cmp > 0
	case IterGE:
		return cmp >= 0
	case IterLT:
		return cmp < 0
	case IterLE:
		return cmp <= 0
	default:
		return false
	}
}

// TupleKeyIsVisible is a convenience predicate built on Clarify: true
// iff txn would observe some tuple at story's position in index.
func (m *Manager) TupleKeyIsVisible(txn *Txn, space *Space, story *Story, index Index) bool {
	return m.Clarify(txn, space, story, index, true) != nil
}

// IndexInvisibleCountMatchingUntil counts dirty chain heads in index
// whose visible tuple (to txn) does not exist, up to the until bound.
// Real index implementations would provide a bounded iterator; this
// reference implementation walks the manager's dirty set, which is
// sufficient for the bounded-cardinality workloads exercised by this
// package's tests.
func (m *Manager) IndexInvisibleCountMatchingUntil(txn *Txn, index Index, until []byte) int {
	count := 0
	kd := index.KeyDef()
	i := index.Def().DenseID
	for _, st := range m.storiesByTuple {
		if st.space == nil || len(st.links) <= i || !st.links[i].inIndex {
			continue
		}
		if len(until) > 0 && kd.Key != nil && bytes.Compare(kd.Key(st.tuple), until) >= 0 {
			continue
		}
		if m.Clarify(txn, st.space, st, index, false) == nil {
			count++
		}
	}
	return count
}
