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

// Package closer tracks every fd-backed io.Closer opened on behalf of a
// session (channel sockets, link sockets, shadow-backing files and dmabuf
// handles) and guarantees each is closed exactly once, satisfying spec.md
// §8 invariant 3 ("no fd is closed twice ... verified by an fd-leak check at
// worker exit"). Grounded on the teacher's ioutils/mapCloser, simplified:
// no generic libctx.Config map (a plain mutex-guarded slice is enough for
// per-session bookkeeping) and no 100ms context-polling goroutine (a single
// goroutine selecting on ctx.Done() is the idiomatic replacement).
package closer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Set is a thread-safe registry of io.Closer instances. All registered
// closers are closed, in registration order, exactly once: by an explicit
// Close() call, or automatically when the context passed to New is done.
type Set struct {
	mu     sync.Mutex
	items  []io.Closer
	closed bool
}

// New creates a Set that auto-closes when ctx is cancelled.
func New(ctx context.Context) *Set {
	s := NewSet()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s
}

// NewSet creates a Set with no context binding; the caller closes it
// explicitly.
func NewSet() *Set {
	return &Set{}
}

// Add registers one or more closers. A no-op once the set is closed.
func (s *Set) Add(c ...io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, v := range c {
		if v != nil {
			s.items = append(s.items, v)
		}
	}
}

// Len reports how many closers are currently registered.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close closes every registered closer exactly once, in registration order,
// and aggregates any failures into a single error. Calling Close twice is
// safe: the second call is a no-op returning nil, since every fd it would
// have touched has already gone through exactly one Close call here.
func (s *Set) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	items := s.items
	s.items = nil
	s.mu.Unlock()

	var errs []string
	for _, c := range items {
		if err := c.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closer: %s", strings.Join(errs, "; "))
	}
	return nil
}
