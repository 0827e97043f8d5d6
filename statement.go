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

import "github.com/pkg/errors"

// AddStmt records one DML statement against the manager. newTuple == nil means a delete of oldTupleHint;
// otherwise newTuple is inserted/replaced per mode.
func (m *Manager) AddStmt(stmt *Statement, oldTupleHint, newTuple Tuple, mode ReplaceMode) (oldVisible Tuple, err error) {
	txn := stmt.Txn
	if txn.status != TxnInProgress {
		return nil, ErrTxnNotInProgress
	}
	txn.issuedStatement = true
	txn.stmts = append(txn.stmts, stmt)

	if stmt.Space.Ephemeral {
		stmt.rollbackOldTuple = oldTupleHint
		stmt.rollbackNewTuple = newTuple
		return oldTupleHint, nil
	}

	if newTuple != nil {
		return m.addStmtInsertReplace(stmt, newTuple, mode)
	}
	return m.addStmtDelete(stmt, oldTupleHint)
}

func (m *Manager) addStmtInsertReplace(stmt *Statement, newTuple Tuple, mode ReplaceMode) (Tuple, error) {
	space := stmt.Space
	txn := stmt.Txn

	for i, idx := range space.Indexes {
		if idx.KeyDef().MultikeyFunc {
			return nil, errors.Wrapf(ErrMultikeyFunctionalIndex, "space %q index %d", space.Name, i)
		}
	}

	newSt := m.newStory(space, newTuple)
	stmt.AddStory = newSt
	newSt.addStmt = stmt

	directlyReplaced := make([]Tuple, len(space.Indexes))
	successor := make([]Tuple, len(space.Indexes))
	for i, idx := range space.Indexes {
		removed, succ, err := idx.Replace(nil, newTuple, ModeReplaceOrInsert)
		if err != nil {
			return nil, err
		}
		directlyReplaced[i] = removed
		successor[i] = succ
	}

	var oldSt *Story
	var oldVisible Tuple
	for i, idx := range space.Indexes {
		replaced := directlyReplaced[i]
		if replaced == nil || !m.isDirty(replaced) {
			continue
		}
		replacedSt := m.getStory(replaced)
		visible := m.Clarify(txn, space, replacedSt, idx, false)
		if i == 0 {
			oldVisible = visible
			if visible != nil && mode == ModeInsert {
				m.abandonNewStory(space, newSt, directlyReplaced)
				return nil, errors.Wrapf(ErrDuplicateKey, "space %q index %d", space.Name, i)
			}
			oldSt = replacedSt
		}
	}
	if directlyReplaced[0] != nil && oldSt == nil {
		// A previously-clean tuple was displaced: give it a story too,
		// so the deletion side of this statement has somewhere to link.
		oldSt = m.newStory(space, directlyReplaced[0])
	}

	for i, idx := range space.Indexes {
		kd := idx.KeyDef()
		if directlyReplaced[i] == nil && !idx.KeyExcluded(newTuple) {
			m.resolveGapsForNewStory(kd, idx, newSt, storyForTuple(m, successor[i]))
			m.convertPointHoles(idx, newSt, newTuple)
			m.promoteCountGaps(idx, newSt, newTuple)
			if err := m.linkTop(idx, newSt, nil, i, true); err != nil {
				return nil, err
			}
			continue
		}
		var existing *Story
		if i == 0 {
			existing = oldSt
		} else if m.isDirty(directlyReplaced[i]) {
			existing = m.getStory(directlyReplaced[i])
		}
		if err := m.linkTop(idx, newSt, existing, i, false); err != nil {
			return nil, err
		}
	}

	if oldSt != nil {
		linkDeleter(stmt, oldSt)
	}

	if !stmt.isOwnChange && (mode == ModeInsert || space.HasReplaceTriggers) {
		m.trackOwnPosition(stmt, newSt)
	}

	return oldVisible, nil
}

// abandonNewStory undoes the physical replace calls already issued for
// newSt and frees it, used when an INSERT discovers a visible
// predecessor and must fail with ErrDuplicateKey.
func (m *Manager) abandonNewStory(space *Space, newSt *Story, directlyReplaced []Tuple) {
	for i, idx := range space.Indexes {
		if _, _, err := idx.Replace(newSt.tuple, directlyReplaced[i], ModeReplace); err != nil {
			panic("memtx: failed to unwind duplicate-key insert: " + err.Error())
		}
	}
	newSt.addStmt = nil
	m.deleteStory(newSt)
}

func storyForTuple(m *Manager, t Tuple) *Story {
	if t == nil || !m.isDirty(t) {
		return nil
	}
	return m.getStory(t)
}

// trackOwnPosition attaches a self gap-observer on the statement's own
// newly created story so a later competing insert at the same
// position is detected via the ordinary gap-conflict machinery.
func (m *Manager) trackOwnPosition(stmt *Statement, newSt *Story) {
	primary := stmt.Space.Primary()
	i := primary.Def().DenseID
	g := &GapReader{
		Txn:       stmt.Txn,
		Index:     primary,
		IterType:  IterEQ,
		PartCount: primary.KeyDef().PartCount,
		story:     newSt,
		origin:    originGap,
	}
	newSt.links[i].readGaps = append(newSt.links[i].readGaps, g)
	stmt.Txn.gapList = append(stmt.Txn.gapList, g)
}

func (m *Manager) addStmtDelete(stmt *Statement, oldTuple Tuple) (Tuple, error) {
	if oldTuple == nil || !m.isDirty(oldTuple) {
		return nil, ErrIllegalParams
	}
	st := m.getStory(oldTuple)
	linkDeleter(stmt, st)
	for i, idx := range stmt.Space.Indexes {
		kd := idx.KeyDef()
		for _, c := range m.countGaps[idx] {
			if c.story != nil || !kd.countMatches(c, oldTuple) {
				continue
			}
			c.story = st
			g := &GapReader{Txn: c.txn, Index: idx, IterType: c.iterType, Key: c.key, PartCount: c.partCount, story: st, origin: originCountPromoted}
			st.links[i].readGaps = append(st.links[i].readGaps, g)
			c.txn.gapList = append(c.txn.gapList, g)
		}
	}
	st.tupleIsRetained = true
	return oldTuple, nil
}

func linkDeleter(stmt *Statement, st *Story) {
	stmt.DelStory = st
	stmt.nextInDelList = st.delStmt
	st.delStmt = stmt
}

func removeFromDelList(st *Story, stmt *Statement) {
	if st == nil {
		return
	}
	var kept *Statement
	for d := st.delStmt; d != nil; {
		next := d.nextInDelList
		if d != stmt {
			d.nextInDelList = kept
			kept = d
		}
		d = next
	}
	st.delStmt = kept
}

// --- Nearby-gap resolution policy -----------------------------------------

// resolveGapPolicy decides what to do with a pre-existing nearby-gap
// tracker g when newTuple is inserted at a position that may cross it.
func resolveGapPolicy(kd *KeyDef, newTuple Tuple, g *GapReader) (needSplit, needMove, needTrack bool) {
	dir := g.IterType.direction()
	isFullKey := g.PartCount == kd.PartCount
	isEq := g.IterType.isEQ()
	isE := g.IterType.isE()

	var cmp int
	if len(g.Key) == 0 {
		needSplit = true
	} else {
		cmp = kd.CmpKey(newTuple, g.Key)
		needSplit = (dir*cmp > 0 && !isEq) || (!isFullKey && cmp == 0 && (isE || isEq))
	}
	if !needSplit {
		needMove = (dir < 0 && cmp > 0) ||
			(cmp > 0 && g.IterType == IterEQ) ||
			(cmp == 0 && ((dir < 0 && isFullKey) || g.IterType == IterLT))
	}
	needTrack = needSplit || (isFullKey && cmp == 0 && isE)
	return
}

// resolveGapsForNewStory applies resolveGapPolicy to every gap tracker
// attached to successor, splitting/moving/tracking as required.
func (m *Manager) resolveGapsForNewStory(kd *KeyDef, index Index, newSt, successor *Story) {
	if successor == nil {
		return
	}
	i := index.Def().DenseID
	remaining := successor.links[i].readGaps[:0:0]
	for _, g := range successor.links[i].readGaps {
		needSplit, needMove, needTrack := resolveGapPolicy(kd, newSt.tuple, g)
		if needMove {
			g.story = newSt
			newSt.links[i].readGaps = append(newSt.links[i].readGaps, g)
			continue
		}
		remaining = append(remaining, g)
		if needSplit || needTrack {
			clone := &GapReader{Txn: g.Txn, Index: g.Index, IterType: g.IterType, Key: g.Key, PartCount: g.PartCount, story: newSt, origin: g.origin}
			newSt.links[i].readGaps = append(newSt.links[i].readGaps, clone)
			clone.Txn.gapList = append(clone.Txn.gapList, clone)
		}
	}
	successor.links[i].readGaps = remaining
}

// convertPointHoles evicts point-hole trackers exactly matching
// newTuple's key and converts each into a gap-observer on newSt
func (m *Manager) convertPointHoles(index Index, newSt *Story, newTuple Tuple) {
	kd := index.KeyDef()
	if kd.Key == nil {
		return
	}
	pk := pointHoleKey{index: index, key: string(kd.Key(newTuple))}
	list := m.pointHoles[pk]
	if len(list) == 0 {
		return
	}
	delete(m.pointHoles, pk)
	i := index.Def().DenseID
	for _, p := range list {
		removeFromSlice(&p.txn.pointHoles, p)
		g := &GapReader{Txn: p.txn, Index: index, IterType: IterEQ, Key: p.key, PartCount: kd.PartCount, story: newSt, origin: originPointConverted}
		newSt.links[i].readGaps = append(newSt.links[i].readGaps, g)
		p.txn.gapList = append(p.txn.gapList, g)
	}
}

// promoteCountGaps marks every count-gap tracker whose bound newTuple
// satisfies as a gap-reader of newSt.
func (m *Manager) promoteCountGaps(index Index, newSt *Story, newTuple Tuple) {
	kd := index.KeyDef()
	i := index.Def().DenseID
	for _, c := range m.countGaps[index] {
		if c.story != nil || !kd.countMatches(c, newTuple) {
			continue
		}
		c.story = newSt
		g := &GapReader{Txn: c.txn, Index: index, IterType: c.iterType, Key: c.key, PartCount: c.partCount, story: newSt, origin: originCountPromoted}
		newSt.links[i].readGaps = append(newSt.links[i].readGaps, g)
		c.txn.gapList = append(c.txn.gapList, g)
	}
}

// --- Preparation -----------------------------------------------------------

// PrepareStmt assigns psn to stmt and performs the chain reordering
// and conflict propagation that make the statement's effects durable
// to prepared-read observers.
func (m *Manager) PrepareStmt(stmt *Statement, psn PSN) {
	stmt.psn = psn
	if stmt.AddStory != nil {
		m.prepareInsert(stmt, psn)
		return
	}
	m.prepareDeleteOnly(stmt, psn)
}

func (m *Manager) prepareInsert(stmt *Statement, psn PSN) {
	newSt := stmt.AddStory
	space := stmt.Space
	txn := stmt.Txn

	// Step 1: sink through stories that are still in-progress adds,
	// so the chain stays ordered rolled-back < in-progress < prepared
	// < committed, newest to oldest.
	for i := range space.Indexes {
		for {
			older := newSt.links[i].older
			if older == nil || older.addStmt == nil || older.addPSN != PSNUnassigned {
				break
			}
			reorder(newSt, older, i)
		}
	}

	// Step 2: relink in-progress deleters.
	if stmt.DelStory == nil {
		m.relinkOrphanDeleters(newSt)
	} else {
		relinkDeletersOf(newSt, stmt.DelStory, stmt)
	}

	// Step 3: conflict readers of the primary position.
	if stmt.DelStory != nil {
		m.conflictReaders(stmt.DelStory, txn, psn)
	} else {
		m.conflictGapReaders(newSt, 0, txn, psn)
	}

	// Step 4: secondary indexes.
	for i := 1; i < len(space.Indexes); i++ {
		idx := space.Indexes[i]
		for cur := newSt.links[i].newer; cur != nil; cur = cur.links[i].newer {
			as := cur.addStmt
			if as == nil || as.Txn == txn {
				continue
			}
			if as.isOwnChange && as.DelStory == nil {
				continue
			}
			if as.DelStory != nil && stmt.DelStory != nil && as.DelStory == stmt.DelStory {
				continue
			}
			m.SendToReadView(as.Txn, psn)
		}
		head := newSt
		for head.links[i].newer != nil {
			head = head.links[i].newer
		}
		m.conflictGapReaders(head, i, txn, psn)
	}

	// Step 5.
	newSt.addPSN = psn
	if stmt.DelStory != nil {
		stmt.DelStory.delPSN = psn
	}
}

// relinkOrphanDeleters re-points every newer, still in-progress,
// not-own, replace-nothing statement in the primary chain to delete
// newSt, since newSt now occupies the position they believed was empty
// when it never had one of its own.
func (m *Manager) relinkOrphanDeleters(newSt *Story) {
	for cur := newSt.links[0].newer; cur != nil; cur = cur.links[0].newer {
		as := cur.addStmt
		if as == nil || as.Txn == newSt.addStmt.Txn || as.DelStory != nil {
			continue
		}
		linkDeleter(as, newSt)
	}
}

// relinkDeletersOf moves every in-progress deleter of oldSt, other
// than except, to delete newSt instead.
func relinkDeletersOf(newSt, oldSt *Story, except *Statement) {
	var kept *Statement
	for d := oldSt.delStmt; d != nil; {
		next := d.nextInDelList
		if d == except {
			d.nextInDelList = kept
			kept = d
		} else {
			d.DelStory = newSt
			d.nextInDelList = newSt.delStmt
			newSt.delStmt = d
		}
		d = next
	}
	oldSt.delStmt = kept
}

func (m *Manager) prepareDeleteOnly(stmt *Statement, psn PSN) {
	st := stmt.DelStory
	txn := stmt.Txn

	var kept *Statement
	for d := st.delStmt; d != nil; {
		next := d.nextInDelList
		if d == stmt {
			d.nextInDelList = kept
			kept = d
		} else {
			d.DelStory = nil
			d.nextInDelList = nil
		}
		d = next
	}
	st.delStmt = kept

	m.conflictReaders(st, txn, psn)
	st.delPSN = psn
}

// --- Commit ------------------------------------------------------------

// CommitStmt drops stmt's back-pointers from the stories it
// referenced and drains a GC step.
func (m *Manager) CommitStmt(stmt *Statement) {
	if stmt.AddStory != nil {
		stmt.AddStory.addStmt = nil
	}
	if stmt.DelStory != nil {
		removeFromDelList(stmt.DelStory, stmt)
	}
	m.stats.statementsCommitted++
	m.GCStep()
}

// --- Rollback ----------------------------------------------------------

// RollbackStmt inverts the effect of AddStmt (and, where applicable,
// PrepareStmt) for stmt.
func (m *Manager) RollbackStmt(stmt *Statement) {
	switch {
	case stmt.AddStory != nil:
		m.rollbackAdd(stmt)
	case stmt.DelStory != nil:
		m.rollbackDelete(stmt)
	default:
		m.rollbackEphemeral(stmt)
	}
	m.stats.statementsRolledBack++
}

func (m *Manager) rollbackAdd(stmt *Statement) {
	newSt := stmt.AddStory
	space := stmt.Space
	prepared := newSt.addPSN != PSNUnassigned

	if prepared {
		if stmt.DelStory != nil {
			relinkDeletersOf(stmt.DelStory, newSt, stmt)
			stmt.DelStory.delPSN = PSNUnassigned
		} else {
			for d := newSt.delStmt; d != nil; {
				next := d.nextInDelList
				d.DelStory = nil
				d.nextInDelList = nil
				d = next
			}
			newSt.delStmt = nil
		}
		newSt.addPSN = PSNUnassigned
		m.abortReaders(newSt)
	}

	for i, idx := range space.Indexes {
		if newSt.links[i].inIndex {
			var restore Tuple
			older := newSt.links[i].older
			if older != nil {
				restore = older.tuple
				older.links[i].inIndex = true
			}
			newSt.links[i].inIndex = false
			if _, _, err := idx.Replace(newSt.tuple, restore, ModeReplace); err != nil {
				panic("memtx: failed to roll back insert: " + err.Error())
			}
		}
		m.abortGapReaders(newSt, i)
	}

	if !prepared {
		for i := range newSt.links {
			unlink(newSt, i)
		}
		if stmt.DelStory != nil {
			removeFromDelList(stmt.DelStory, stmt)
		}
		m.deleteStory(newSt)
		return
	}

	for i := range newSt.links {
		sinkToTail(newSt, i)
	}
	newSt.delPSN = RollbackedPSN
}

func sinkToTail(st *Story, i int) {
	for st.links[i].older != nil {
		reorder(st, st.links[i].older, i)
	}
}

func (m *Manager) rollbackDelete(stmt *Statement) {
	st := stmt.DelStory
	prepared := st.delPSN != PSNUnassigned && st.delPSN != RollbackedPSN

	removeFromDelList(st, stmt)

	if prepared {
		st.delPSN = PSNUnassigned
		m.abortGapReaders(st, 0)
	}
	if st.delStmt == nil {
		st.tupleIsRetained = false
	}
}

func (m *Manager) rollbackEphemeral(stmt *Statement) {
	if stmt.rollbackOldTuple == nil && stmt.rollbackNewTuple == nil {
		return
	}
	for _, idx := range stmt.Space.Indexes {
		if _, _, err := idx.Replace(stmt.rollbackNewTuple, stmt.rollbackOldTuple, ModeReplace); err != nil {
			panic("memtx: failed to roll back ephemeral statement: " + err.Error())
		}
	}
}
