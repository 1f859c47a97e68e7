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

// Package reconnect implements the control-FIFO reader and the standalone
// reconnection controller of spec.md §4.G, plus the shared "connect, write
// an UPDATE token, hand off the fd" step that the multi-mode supervisor
// folds into itself per §4.F. Grounded on original_source/src/server.c's
// reconnection loop for the state machine and on the teacher's raw-syscall
// style (golang.org/x/sys/unix) already established in internal/chanio.
package reconnect

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// maxPathLen is the sockaddr_un path length limit spec.md §4.F/§6 names
// ("no longer than the system's sockaddr path limit"), derived from the
// platform's raw sockaddr_un struct rather than hardcoded, minus one byte
// reserved for the NUL terminator every caller of unix.Connect implicitly
// requires.
var maxPathLen = len(unix.RawSockaddrUnix{}.Path) - 1

// readChunk is the per-read cap spec.md §6 names: "reads are up to 4095
// bytes".
const readChunk = 4095

// FIFOReader wraps a control FIFO opened O_RDWR|O_NONBLOCK (spec.md §4.F:
// "both ends open in the supervisor to suppress spurious hangups") and
// accumulates bytes across reads so a path written in more than one write
// syscall is still recognized once its terminator arrives (spec.md §6:
// "multiple writes may be concatenated").
type FIFOReader struct {
	path string
	fd   int
	buf  []byte
}

// NewFIFOReader creates the FIFO at path if absent (mkfifo mode 0644, per
// spec.md §6) and opens both ends for reading.
func NewFIFOReader(path string) (*FIFOReader, error) {
	if err := unix.Mkfifo(path, 0644); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("reconnect: mkfifo %s: %w", path, err)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("reconnect: open %s: %w", path, err)
	}
	return &FIFOReader{path: path, fd: fd}, nil
}

// FD is the raw fd to include in a poll set.
func (r *FIFOReader) FD() int { return r.fd }

// Poll performs one non-blocking read and extracts every complete,
// NUL-or-newline-terminated path found in the accumulated buffer (spec.md
// §6). oversize reports whether any candidate exceeded maxPathLen; such
// candidates are dropped (logged by the caller) rather than returned, per
// spec.md §7's "logged, offending input ignored" policy and the S6 test
// scenario (an oversized write does not abort the supervisor and a
// subsequent valid write is still honored).
//
// A writer-side EOF (every writer closed, since a FIFO has no persistent
// writer) is not fatal: the FIFO is transparently reopened, per the
// supplemented behavior in SPEC_FULL.md §4.4.
func (r *FIFOReader) Poll() (paths []string, oversize bool, err error) {
	chunk := make([]byte, readChunk)
	n, rerr := unix.Read(r.fd, chunk)
	switch {
	case rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK:
		// nothing to read this round
	case rerr == unix.EINTR:
		return nil, false, nil
	case rerr != nil:
		return nil, false, fmt.Errorf("reconnect: read control fifo: %w", rerr)
	case n == 0:
		if err = r.reopen(); err != nil {
			return nil, false, err
		}
	default:
		r.buf = append(r.buf, chunk[:n]...)
	}

	for {
		idx := -1
		for i, b := range r.buf {
			if b == 0 || b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		cand := string(r.buf[:idx])
		r.buf = r.buf[idx+1:]
		if len(cand) == 0 {
			continue
		}
		if len(cand) > maxPathLen {
			oversize = true
			continue
		}
		paths = append(paths, cand)
	}
	return paths, oversize, nil
}

func (r *FIFOReader) reopen() error {
	_ = unix.Close(r.fd)
	r.buf = nil
	fd, err := unix.Open(r.path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("reconnect: reopen control fifo: %w", err)
	}
	r.fd = fd
	return nil
}

// Close closes the FIFO fd and, if unlink is true (the supervisor created
// the FIFO), removes the path, per spec.md §4.F's unlink policy.
func (r *FIFOReader) Close(unlinkPath bool) error {
	err := unix.Close(r.fd)
	if unlinkPath {
		if rerr := os.Remove(r.path); rerr != nil && !os.IsNotExist(rerr) {
			return rerr
		}
	}
	return err
}
