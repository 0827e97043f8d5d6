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

// Tuple is the immutable payload a Story versions. Storage and
// reference counting for tuples live outside this package; the
// manager only needs a stable identity to key its hash tables and a
// way to ask the index to compare/replace it.
type Tuple interface {
	// Identity returns a value that is stable for the lifetime of the
	// tuple and unique among live tuples. The story store's primary
	// hash (tuple -> Story) is keyed by this.
	Identity() uintptr
}

// IterType mirrors the iterator types a nearby-gap or count-gap
// tracker was opened with; only relative order and (in)equality matter
// to the gap-resolution policy, not the full surface a real query
// layer would expose.
type IterType uint8

const (
	IterEQ IterType = iota
	IterREQ
	IterGT
	IterGE
	IterLT
	IterLE
)

// direction returns +1 for iterators that walk the index forward
// (ascending key order) and -1 for iterators that walk it backward.
func (t IterType) direction() int {
	switch t {
	case IterLT, IterLE, IterREQ:
		return -1
	default:
		return 1
	}
}

func (t IterType) isEQ() bool  { return t == IterEQ || t == IterREQ }
func (t IterType) isE() bool   { return t == IterLE || t == IterGE }

// ReplaceMode mirrors the three modes add_stmt can request of
// index.replace.
type ReplaceMode uint8

const (
	ModeInsert ReplaceMode = iota
	ModeReplace
	ModeReplaceOrInsert
)

// SpaceID identifies a space; dense and stable for the process
// lifetime, the way the source's dense_id fields are.
type SpaceID uint32

// KeyDef is the comparator/hasher contract an index exposes. Cmp must
// implement a strict weak ordering consistent with the index's
// physical order; for hash/unordered indexes Cmp may be nil (see
// Index.Ordered).
type KeyDef struct {
	PartCount      int
	ForFuncIndex   bool
	HasExcludeNull bool
	MultikeyFunc   bool // rejected explicitly, never silently accepted
	Cmp            func(a, b Tuple) int
	Key            func(t Tuple) []byte           // extracts the indexed key bytes, used by hash indexes and point-hole lookups
	CmpKey         func(t Tuple, key []byte) int // compares a tuple against a raw query key, used by the gap-resolution policy
}

// IndexDef carries the static identity of an index.
type IndexDef struct {
	SpaceID SpaceID
	DenseID int // 0-based, stable within the space; DenseID 0 is always primary
	Unique  bool
}

// Index is the narrow contract the manager consumes. Concrete
// index kinds (B-tree, hash, R-tree) are external collaborators; the
// memidx package ships a B-tree-backed and a hash-backed reference
// implementation used by this module's own tests.
type Index interface {
	Def() *IndexDef
	KeyDef() *KeyDef

	// Ordered reports whether Replace populates a meaningful successor
	// tuple (true for tree-like indexes) or always returns nil
	// (hash indexes, which only ever support full-scan tracking).
	Ordered() bool

	// Replace physically mutates the index and returns the tuple
	// displaced (if any) plus new's immediate successor in index
	// order (nil when Ordered() is false, or when new is the last
	// entry). old == nil means "insert"; new == nil means "delete".
	Replace(old, new Tuple, mode ReplaceMode) (removed Tuple, successor Tuple, err error)

	// KeyExcluded reports whether t's key in this index is excluded
	// from physical placement (nullable parts with exclude-null
	// semantics). Excluded tuples are chained but never placed in the
	// physical index.
	KeyExcluded(t Tuple) bool

	// OrphanGaps holds nearby-gap trackers attached to this index's
	// tail position, where no successor story exists yet.
	OrphanGaps() []*GapReader
	SetOrphanGaps([]*GapReader)

	Ref()
	Unref()
}

// Space groups a primary index with its secondary indexes.
type Space struct {
	ID        SpaceID
	Name      string
	Indexes   []Index // Indexes[0] is always primary
	Ephemeral bool     // statements on an ephemeral space never allocate stories

	// HasReplaceTriggers mirrors "space has before/on-replace triggers":
	// such spaces additionally track the insertion position so later
	// inserts/deletes into the same position are observed even outside
	// INSERT mode.
	HasReplaceTriggers bool

	// System spaces always allow observing prepared-but-uncommitted
	// effects, regardless of the reader's isolation level.
	System bool
}

func (s *Space) Primary() Index { return s.Indexes[0] }
