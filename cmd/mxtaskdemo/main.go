// Copyright 2024 The mxtasking Authors
// This file is part of the mxtasking library.
//
// The mxtasking library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The mxtasking library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the mxtasking library. If not, see <http://www.gnu.org/licenses/>.

// Command mxtaskdemo drives the ping-pong scenario (spec.md §8 Scenario A)
// end to end on real, discovered hardware topology: two tasks batting back
// and forth between two pinned workers, each hop incrementing a per-worker
// counter, until a configurable number of iterations have run.
package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/urfave/cli/v2"

	"github.com/mxtasking/tasking"
	"github.com/mxtasking/tasking/config"
	"github.com/mxtasking/tasking/logx"
	"github.com/mxtasking/tasking/task"
	"github.com/mxtasking/tasking/topology"
)

var (
	iterationsFlag = &cli.Uint64Flag{
		Name:  "iterations",
		Usage: "number of ping-pong hops to run before stopping the runtime",
		Value: 1_000_000,
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "mxtaskdemo",
		Usage: "run the mxtasking ping-pong demo scenario",
		Flags: []cli.Flag{iterationsFlag, logLevelFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mxtaskdemo:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logx.SetRoot(logx.New(c.String(logLevelFlag.Name)))

	cores, err := topology.Discover(2, 8)
	if err != nil {
		return fmt.Errorf("discovering topology: %w", err)
	}
	if cores.Len() < 2 {
		return fmt.Errorf("ping-pong needs at least 2 cores, discovered %d", cores.Len())
	}

	cfg := config.Default()
	cfg.QueueBackend = config.WorkerLocal

	rt, err := tasking.Init(cores, cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	limit := int64(c.Uint64(iterationsFlag.Name))
	var executions [2]int64
	var count int64
	seed := &pingTask{executions: &executions, count: &count, limit: limit}
	seed.ann.Destination = task.Worker(1)
	rt.Spawn(seed, 0)

	logx.Info("mxtaskdemo: starting", "workers", rt.WorkerCount(), "iterations", limit)
	if err := rt.StartAndWait(); err != nil {
		return fmt.Errorf("start_and_wait: %w", err)
	}

	logx.Info("mxtaskdemo: done",
		"worker_0_hops", atomic.LoadInt64(&executions[0]),
		"worker_1_hops", atomic.LoadInt64(&executions[1]))
	return nil
}

// pingTask alternates its own destination between workers 0 and 1, one hop
// per execution, until count reaches limit, then returns task.Stop() to
// shut the runtime down (spec.md §8 Scenario A).
type pingTask struct {
	ann        task.Annotation
	executions *[2]int64
	count      *int64
	limit      int64
}

func (p *pingTask) Execute(workerID uint16) task.Result {
	atomic.AddInt64(&p.executions[workerID], 1)
	if atomic.AddInt64(p.count, 1) >= p.limit {
		return task.Stop()
	}
	next := &pingTask{executions: p.executions, count: p.count, limit: p.limit}
	next.ann.Destination = task.Worker(1 - workerID)
	return task.Continue(next)
}

func (p *pingTask) Annotation() *task.Annotation { return &p.ann }
func (p *pingTask) TraceID() uint64              { return 0 }
