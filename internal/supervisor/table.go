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

package supervisor

import (
	"sync"

	"github.com/nabbar/wlproxy/internal/worker"
)

// Record is the connection record of spec.md §3: {token, child_pid,
// link_fd}, with child_pid and link_fd replaced by the worker goroutine
// handle itself per the task-per-connection option documented in
// internal/worker's package doc and DESIGN.md.
type Record struct {
	Worker *worker.Worker
}

// Table is the supervisor's connection table: created when a worker is
// spawned, dropped when the worker exits (spec.md §3, §4.F).
type Table struct {
	mu  sync.Mutex
	set map[int]*Record
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{set: make(map[int]*Record)}
}

// Add registers a newly spawned worker's connection record.
func (t *Table) Add(r *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set[r.Worker.ID()] = r
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.set)
}

// Snapshot returns every currently live record, for the multi-mode
// migration fold-in (spec.md §4.F) to iterate without holding the table
// lock across network I/O.
func (t *Table) Snapshot() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Record, 0, len(t.set))
	for _, r := range t.set {
		out = append(out, r)
	}
	return out
}

// Reaped is one dead connection record found by Sweep, tagged with whether
// it was the table's only live connection at the moment it was found dead
// (spec.md §4.F: "a sole-child exit code is propagated").
type Reaped struct {
	Record *Record
	Sole   bool
}

// Sweep is the non-blocking child-reaper of spec.md §4.F: it drops every
// record whose worker has already exited and returns them, so the caller
// can log exit status. Sole only tags the record; Multi records it as a log
// field, and a worker's exit is not turned into the supervisor's exit code,
// which is always the application's.
func (t *Table) Sweep() []Reaped {
	t.mu.Lock()
	defer t.mu.Unlock()

	sole := len(t.set) == 1
	var dead []Reaped
	for id, r := range t.set {
		select {
		case <-r.Worker.Done():
			dead = append(dead, Reaped{Record: r, Sole: sole})
			delete(t.set, id)
		default:
		}
	}
	return dead
}
