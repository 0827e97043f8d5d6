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

import "errors"

// Sentinel errors returned across the statement lifecycle. All other
// structural operations are infallible given their documented preconditions;
// violating a precondition is a programmer error and panics instead, because
// a partially-mutated chain cannot be made consistent afterward.
var (
	// ErrDuplicateKey is returned by add_stmt when INSERT mode finds a
	// visible predecessor already occupying the unique key.
	ErrDuplicateKey = errors.New("memtx: duplicate key would violate uniqueness")

	// ErrOutOfMemory is returned when a pool or arena allocation fails.
	ErrOutOfMemory = errors.New("memtx: allocation failed")

	// ErrIllegalParams flags misuse from host callbacks: nil tuples where
	// one is required, a dirty-tuple precondition violated, etc.
	ErrIllegalParams = errors.New("memtx: illegal parameters")

	// ErrDDLBusy is returned by AcquireDDL when another transaction
	// already holds the DDL slot for the space.
	ErrDDLBusy = errors.New("memtx: space DDL already held by another transaction")

	// ErrTxnNotInProgress guards statement-lifecycle entry points against
	// being called on a transaction that has already left INPROGRESS.
	ErrTxnNotInProgress = errors.New("memtx: transaction is not in progress")

	// ErrMultikeyFunctionalIndex preserves, as an explicit precondition
	// rather than silent acceptance, the source's assertion that
	// multikey functional indexes are unsupported in the MVCC layer.
	ErrMultikeyFunctionalIndex = errors.New("memtx: multikey functional indexes are not supported by the version layer")
)
