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

package worker

import (
	"runtime"
	"time"

	"github.com/mxtasking/tasking/config"
)

// powerSaveSleep is how long a PowerSave worker sleeps between empty
// withdraws, trading latency for the idle CPU time a tight pause-loop
// would otherwise burn (spec.md §9 Design Notes, "worker_mode").
const powerSaveSleep = 50 * time.Microsecond

// builtinPause stands in for the x86 PAUSE instruction the original issues
// in its idle spin (system::builtin::pause()); Go has no portable pause
// intrinsic, so Performance mode yields the scheduler instead of busy
// looping on nothing, and PowerSave mode sleeps briefly.
func builtinPause(mode config.WorkerMode) {
	if mode == config.PowerSave {
		time.Sleep(powerSaveSleep)
		return
	}
	runtime.Gosched()
}
