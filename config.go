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

// Config holds the tunables every constructor-time Option mutates.
// There is deliberately no way to change these after New returns: the
// crawler's pacing and the cache sizing are structural decisions, not
// runtime knobs.
type Config struct {
	// GCStepsPerMutation is how many GC crawler steps are credited to
	// the backlog for every story created.
	GCStepsPerMutation int64

	// FuncKeyCacheSize bounds the functional-key cache's entry count.
	// Zero disables the cache entirely (no cache is allocated). The
	// manager's own read and write paths do not consult the cache
	// either way.
	FuncKeyCacheSize int

	// ReadViewCapacityHint sizes the initial allocation of the
	// read-view set slice, avoiding repeated growth for workloads that
	// are known to run with many concurrent long readers.
	ReadViewCapacityHint int

	// StartPSN seeds the PSN frontier. Only useful for tests and tools
	// that need deterministic, reproducible PSN sequences across runs.
	StartPSN PSN
}

func defaultConfig() Config {
	return Config{
		GCStepsPerMutation:   1,
		FuncKeyCacheSize:     4096,
		ReadViewCapacityHint: 0,
		StartPSN:             1,
	}
}

// Option configures a Manager at construction time.
type Option func(*Config)

// WithGCStepsPerMutation overrides the per-mutation GC backlog credit.
func WithGCStepsPerMutation(n int64) Option {
	return func(c *Config) { c.GCStepsPerMutation = n }
}

// WithFuncKeyCacheSize overrides the functional-key cache capacity.
// A size of 0 disables the cache.
func WithFuncKeyCacheSize(n int) Option {
	return func(c *Config) { c.FuncKeyCacheSize = n }
}

// WithReadViewCapacityHint preallocates the read-view set.
func WithReadViewCapacityHint(n int) Option {
	return func(c *Config) { c.ReadViewCapacityHint = n }
}

// WithStartPSN seeds the PSN frontier a Manager begins issuing from.
func WithStartPSN(psn PSN) Option {
	return func(c *Config) { c.StartPSN = psn }
}
