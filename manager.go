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
	"go.uber.org/zap"

	"github.com/erigontech/memtx-mvcc/internal/numeric"
)

// Manager owns every piece of mutable state the transaction machinery
// touches: the story pool and its index, the global GC ring, the
// read-view set, gap/point-hole/count/full-scan tracker tables, and
// the function-key cache. A Manager is not safe for concurrent use;
// callers drive it from a single cooperative loop.
type Manager struct {
	storyPool      *pool[Story]
	storiesByTuple map[uint64]*Story
	dirty          map[uintptr]struct{}

	gcHead, gcTail *Story
	gcCursor       *Story
	gcBacklog      int64

	readViewSet []*Txn
	nextPSN     PSN

	pointHoles map[pointHoleKey][]*pointHoleTracker
	countGaps  map[Index][]*countTracker
	fullScans  map[Index][]*fullScanTracker

	funcKeys *funcKeyCache

	ddlOwners map[SpaceID]*Txn

	cfg   Config
	stats Stats
	log   *zap.Logger
}

// New constructs a Manager ready to register transactions.
func New(opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	m := &Manager{
		storyPool:      newPool(func() *Story { return new(Story) }),
		storiesByTuple: make(map[uint64]*Story),
		dirty:          make(map[uintptr]struct{}),
		pointHoles:     make(map[pointHoleKey][]*pointHoleTracker),
		countGaps:      make(map[Index][]*countTracker),
		fullScans:      make(map[Index][]*fullScanTracker),
		ddlOwners:      make(map[SpaceID]*Txn),
		cfg:            cfg,
		nextPSN:        cfg.StartPSN,
		log:            zap.NewNop(),
	}
	if cfg.FuncKeyCacheSize > 0 {
		m.funcKeys = newFuncKeyCache(cfg.FuncKeyCacheSize)
	}
	if cfg.ReadViewCapacityHint > 0 {
		m.readViewSet = make([]*Txn, 0, cfg.ReadViewCapacityHint)
	}
	return m
}

// SetLogger installs the structured logger the manager holds. None of
// the manager's operations write log entries to it. Passing nil
// installs a no-op logger.
func (m *Manager) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	m.log = l
}

// RegisterTxn returns a new in-progress transaction handle. It is not
// pinned to any PSN: its rv_psn stays +infinity until a conflict sends
// it into a read view.
func (m *Manager) RegisterTxn(id TxnID, isolation IsolationLevel) *Txn {
	return &Txn{
		ID:        id,
		status:    TxnInProgress,
		isolation: isolation,
		rvPSN:     psnInfinity,
	}
}

// AllocPSN hands out the next Prepare Sequence Number and advances the
// frontier. It panics on overflow rather than
// silently wrapping into a small PSN that would compare less than
// history already committed.
func (m *Manager) AllocPSN() PSN {
	psn := m.nextPSN
	next, overflow := numeric.SafeAdd(uint64(m.nextPSN), 1)
	if overflow {
		panic("memtx: PSN counter overflowed")
	}
	m.nextPSN = PSN(next)
	return psn
}

// AcquireDDL grants txn exclusive ownership of space's DDL slot,
// failing with ErrDDLBusy if another in-progress transaction already
// holds it. System spaces get no special treatment: the same
// exclusivity rule applies to every space ID.
func (m *Manager) AcquireDDL(txn *Txn, spaceID SpaceID) error {
	if owner, ok := m.ddlOwners[spaceID]; ok && owner != txn {
		if owner.status == TxnInProgress {
			return ErrDDLBusy
		}
	}
	m.ddlOwners[spaceID] = txn
	if txn.ddlOwnerOf == nil {
		txn.ddlOwnerOf = make(map[SpaceID]bool)
	}
	txn.ddlOwnerOf[spaceID] = true
	return nil
}

// ReleaseDDL drops every DDL slot txn holds; called once txn finishes
// (commit, rollback, or abort).
func (m *Manager) ReleaseDDL(txn *Txn) {
	for spaceID := range txn.ddlOwnerOf {
		if m.ddlOwners[spaceID] == txn {
			delete(m.ddlOwners, spaceID)
		}
	}
	txn.ddlOwnerOf = nil
}

// FinishTxn releases a transaction's resources once its final
// commit/rollback statement has been processed: its
// read/gap/point-hole/count/full-scan trackers are unlinked from every
// story and index they reference, its read-view membership and DDL
// slots are dropped, and its arena is torn down. Without this step a
// committed transaction's reader-list entries would pin its stories
// alive forever, since the GC crawler treats a non-empty reader list
// as a reason to keep a story.
func (m *Manager) FinishTxn(txn *Txn, status TxnStatus) {
	m.clearTxnReadLists(txn)
	m.removeFromReadView(txn)
	m.ReleaseDDL(txn)
	txn.arena.Reset()
	txn.status = status
}

// Statistics returns a point-in-time snapshot of the manager's
// internal counters.
func (m *Manager) Statistics() Stats {
	s := m.stats
	s.storiesLive = int64(len(m.storiesByTuple))
	s.readViewCount = int64(len(m.readViewSet))
	return s
}
