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

package transfer

import "sync"

// Buffer is the transfer-data buffer of spec.md §5: a fixed number of
// slots, one per block produced by a collect_update pass, each written
// under the buffer's own mutex by whichever pool worker (or the main
// thread, via WaitIdle's opportunistic stealing) finishes that slot's task.
// Indexing by slot rather than appending in completion order is what makes
// "production order equals enqueue order" (spec.md §4.E) hold regardless of
// which worker finishes first.
type Buffer struct {
	mu     sync.Mutex
	blocks [][]byte
	errs   []error
}

// NewBuffer preallocates n ordered slots.
func NewBuffer(n int) *Buffer {
	return &Buffer{blocks: make([][]byte, n)}
}

// Set stores the encoded frame for slot i.
func (b *Buffer) Set(i int, frame []byte) {
	b.mu.Lock()
	b.blocks[i] = frame
	b.mu.Unlock()
}

// Fail records a per-task error (spec.md §7: "the task sets a failure flag;
// the enclosing update is abandoned and the shadow remains dirty for retry
// on the next pass"). Slot i is left unset.
func (b *Buffer) Fail(i int, err error) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}

// Err returns the first per-task error recorded, if any.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) == 0 {
		return nil
	}
	return b.errs[0]
}

// Len reports the slot count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

// Combine is combine_transfer_blocks (spec.md §4.E): concatenates the
// slots into one contiguous buffer, preserving order. Unset slots (a task
// that produced no output, e.g. an elided no-op region) are skipped.
func (b *Buffer) Combine() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int
	for _, blk := range b.blocks {
		total += len(blk)
	}
	out := make([]byte, 0, total)
	for _, blk := range b.blocks {
		out = append(out, blk...)
	}
	return out
}
