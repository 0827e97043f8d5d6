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

// Package memtx implements the memtx transaction manager: snapshot
// isolation and serializable conflict detection layered over an
// in-memory, index-organized store.
//
// Writers produce per-tuple version histories (Story chains, one per
// index); readers observe consistent snapshots through Clarify; the
// Manager detects read/write conflicts at PrepareStmt time and either
// upgrades the conflicting transaction to a deeper read view or aborts
// it outright. An incremental garbage collector reclaims stories that
// are no longer reachable by any reader while preserving the chain-top
// invariant: the head of every chain is always the tuple physically
// present in its index.
//
// The package does not execute statements itself — it observes them
// through AddStmt/PrepareStmt/CommitStmt/RollbackStmt, the way a host
// calls into it as each DML statement runs. It does not own durable
// storage, replication, or query planning; see SPEC_FULL.md for the
// full boundary.
package memtx
