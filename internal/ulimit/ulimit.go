/*
MIT License

Copyright (c) 2020 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package ulimit raises the process's open-file limit before the session
// supervisor starts spawning per-connection workers, each of which holds an
// application fd, a channel socket and one fd per mirrored resource. Grounded
// on the teacher's ioutils/fileDescriptor (RLIMIT_NOFILE query/raise logic),
// trimmed to the Unix path only: a Wayland display proxy has no Windows
// target, so the teacher's maxstdio-based Windows fallback is dropped (see
// DESIGN.md).
package ulimit

import (
	"math"
	"syscall"
)

// Raise queries the current RLIMIT_NOFILE and, if want is greater than the
// current soft limit, attempts to raise it (and the hard limit, if
// necessary and permitted). It never lowers an existing limit. A want <= 0
// just queries the current values.
func Raise(want int) (soft int, hard int, err error) {
	var rl syscall.Rlimit
	if err = syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		return 0, 0, err
	}

	if want <= 0 || uint64(want) <= rl.Cur {
		return clamp(rl.Cur), clamp(rl.Max), nil
	}

	changed := false
	if uint64(want) > rl.Max {
		rl.Max = uint64(want)
		changed = true
	}
	if uint64(want) > rl.Cur {
		rl.Cur = uint64(want)
		changed = true
	}

	if changed {
		if err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
			return 0, 0, err
		}
		return Raise(0)
	}

	return clamp(rl.Cur), clamp(rl.Max), nil
}

func clamp(v uint64) int {
	if v > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(v)
}
