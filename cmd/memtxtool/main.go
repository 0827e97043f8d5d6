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

// Command memtxtool drives the transaction manager outside of a test
// binary, for manual exploration of its behavior and statistics.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/erigontech/memtx-mvcc"
	"github.com/erigontech/memtx-mvcc/internal/numeric"
	"github.com/erigontech/memtx-mvcc/memidx"
)

// intTuple is the minimal Tuple implementation this tool's demo
// scenario runs against: a bare int64 row keyed by its own value.
type intTuple int64

func (t intTuple) Identity() uintptr { return uintptr(t) }

func main() {
	app := &cli.App{
		Name:  "memtxtool",
		Usage: "exercise the memtx transaction manager from the command line",
		Commands: []*cli.Command{
			{
				Name:  "demo",
				Usage: "run a scripted insert/read/commit scenario and print the resulting statistics",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "start-psn",
						Value: "1",
						Usage: "initial PSN frontier, decimal or 0x-prefixed hex",
					},
				},
				Action: func(c *cli.Context) error {
					startPSN, ok := numeric.ParseUint64(c.String("start-psn"))
					if !ok {
						return fmt.Errorf("invalid --start-psn value %q", c.String("start-psn"))
					}
					return runDemo(memtx.PSN(startPSN))
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runDemo(startPSN memtx.PSN) error {
	m := memtx.New(memtx.WithGCStepsPerMutation(2), memtx.WithStartPSN(startPSN))
	m.SetLogger(zap.NewExample())

	def := memtx.IndexDef{SpaceID: 1, DenseID: 0, Unique: true}
	keyDef := memtx.KeyDef{
		PartCount: 1,
		Cmp:       func(a, b memtx.Tuple) int { return int(a.(intTuple) - b.(intTuple)) },
		Key: func(t memtx.Tuple) []byte {
			v := int64(t.(intTuple))
			return []byte{byte(v)}
		},
	}
	primary := memidx.NewBTreeIndex(def, keyDef, 32, nil)
	space := &memtx.Space{ID: 1, Name: "demo", Indexes: []memtx.Index{primary}}

	writer := m.RegisterTxn(1, memtx.IsolationReadCommitted)
	stmt := &memtx.Statement{Space: space, Txn: writer}
	if _, err := m.AddStmt(stmt, nil, intTuple(42), memtx.ModeInsert); err != nil {
		return err
	}
	psn := m.AllocPSN()
	m.PrepareStmt(stmt, psn)
	m.CommitStmt(stmt)
	m.FinishTxn(writer, memtx.TxnCommitted)

	reader := m.RegisterTxn(2, memtx.IsolationReadCommitted)
	visible := m.Clarify(reader, space, stmt.AddStory, primary, true)
	fmt.Printf("read back: %v\n", visible)
	m.FinishTxn(reader, memtx.TxnCommitted)

	fmt.Printf("stats: %+v\n", m.Statistics())
	return nil
}
