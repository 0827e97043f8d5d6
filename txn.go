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

import "math"

// PSN is the Prepare Sequence Number: a monotonically increasing
// integer assigned when a transaction prepares. Zero means
// "in-progress or unassigned". RollbackedPSN is a reserved value
// strictly less than every legitimate PSN, marking rolled-back
// histories as invisible to every reader regardless of rv_psn.
type PSN int64

const (
	PSNUnassigned PSN = 0
	RollbackedPSN PSN = -1
	psnInfinity   PSN = math.MaxInt64
)

// IsolationLevel is consumed from the transaction contract.
type IsolationLevel uint8

const (
	IsolationReadCommitted IsolationLevel = iota
	IsolationReadConfirmed
	IsolationLinearizable
	IsolationBestEffort
)

// TxnStatus mirrors the subset of transaction status the manager
// cares about.
type TxnStatus uint8

const (
	TxnInProgress TxnStatus = iota
	TxnInReadView
	TxnAborted
	TxnCommitted
)

// TxnID is an opaque, host-assigned identifier used only for
// diagnostics and determinism in tests; the manager never derives
// behavior from its ordering (PSN does that job).
type TxnID uint64

// Txn is the transaction contract the manager operates on. The host is
// expected to construct one via Manager.RegisterTxn and drive it
// through the statement lifecycle; nothing here is safe for concurrent
// use from multiple goroutines; the manager is a single-threaded,
// cooperative design.
type Txn struct {
	ID        TxnID
	status    TxnStatus
	isolation IsolationLevel
	psn       PSN
	rvPSN     PSN

	stmts []*Statement

	// readSet / gapList / pointHoles / countGaps are this
	// transaction's own view of its trackers, mirroring read_set,
	// gap_list, point_holes_list. The story/index side holds the
	// matching back-reference; removing a tracker must unlink it from
	// both sides.
	readSet    []*Story
	gapList    []*GapReader
	pointHoles []*pointHoleTracker
	countGaps  []*countTracker
	fullScans  []*fullScanTracker

	ddlOwnerOf map[SpaceID]bool

	arena Arena

	// issuedStatement tracks whether this txn has executed at least
	// one DML statement; BEST_EFFORT isolation allows prepared reads
	// only once this is true.
	issuedStatement bool
}

func (t *Txn) Status() TxnStatus        { return t.status }
func (t *Txn) PSN() PSN                 { return t.psn }
func (t *Txn) Isolation() IsolationLevel { return t.isolation }

// RVPSN returns the PSN frontier this transaction is pinned to when in
// a read view, or +infinity otherwise.
func (t *Txn) RVPSN() PSN {
	if t.status == TxnInReadView {
		return t.rvPSN
	}
	return psnInfinity
}

// IsReadWrite reports whether the transaction has issued a statement
// yet; used by the BEST_EFFORT isolation rule.
func (t *Txn) IsReadWrite() bool { return t.issuedStatement }

// Statement is the statement contract.
type Statement struct {
	Space *Space
	Txn   *Txn

	AddStory *Story
	DelStory *Story

	// nextInDelList links this statement into its DelStory's del_stmt
	// list: the head of the linked list of statements that intend to
	// delete it.
	nextInDelList *Statement

	// isOwnChange marks a statement that observes its own
	// transaction's prior write at the same position; own changes
	// never conflict with themselves.
	isOwnChange bool

	// rollbackOldTuple/rollbackNewTuple record what RollbackStmt needs
	// when the statement never allocated stories; AddStmt sets them
	// only for statements on an ephemeral space.
	rollbackOldTuple Tuple
	rollbackNewTuple Tuple

	psn PSN
}
