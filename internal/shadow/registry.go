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

package shadow

import (
	"sync"
	"sync/atomic"
)

// Registry is the worker-local, unshared shadow-fd table described in
// spec.md §5 ("the shadow registry is worker-local and unshared"). One
// Registry serves both sides of a single worker's traffic, since a worker
// both originates local fds (source role for that direction) and applies
// remote updates (sink role for the other direction).
type Registry struct {
	mu       sync.Mutex
	byLocal  map[int]*Shadow
	byRemote map[int32]*Shadow
	nextID   atomic.Int32
}

func NewRegistry() *Registry {
	return &Registry{
		byLocal:  make(map[int]*Shadow),
		byRemote: make(map[int32]*Shadow),
	}
}

// Detect reports the kind and declared size of a newly observed local fd.
// It is supplied by the caller (the protocol observer, out of scope per
// spec.md §1) rather than hardcoded here, since fd introspection depends on
// the external display-protocol layer.
type Detect func(localFD int) (kind Kind, size int64, buf *BufferMeta, err error)

// TranslateFD is the idempotent lookup-or-create described in spec.md §4.C.
// On the source side, a fresh strictly-positive remote id is minted; detect
// is invoked only on first observation, after which kind and size are
// immutable (contents are not).
func (r *Registry) TranslateFD(side Side, localFD int, detect Detect) (*Shadow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byLocal[localFD]; ok {
		return s, nil
	}

	kind, size, buf, err := detect(localFD)
	if err != nil {
		return nil, err
	}

	rid := r.nextID.Add(1)
	s := &Shadow{
		RemoteID:  rid,
		LocalFD:   localFD,
		Kind:      kind,
		Size:      size,
		Buffer:    buf,
		OwnerSide: side,
	}
	r.byLocal[localFD] = s
	r.byRemote[rid] = s
	return s, nil
}

// GetByRemoteID is the O(1) sink-side lookup named in spec.md §4.C. ok is
// false if no shadow has been created yet for rid.
func (r *Registry) GetByRemoteID(rid int32) (*Shadow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byRemote[rid]
	return s, ok
}

// CreateForRemoteID lazily creates a sink-side shadow on first apply of a
// previously unseen remote id (spec.md §4.C invariant), binding it to a
// freshly allocated localFD (e.g. a shared-memory file, a dmabuf allocation,
// or a pipe pair, per spec.md §4.E's whole-object apply path).
func (r *Registry) CreateForRemoteID(rid int32, localFD int, kind Kind, size int64, buf *BufferMeta) *Shadow {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byRemote[rid]; ok {
		return s
	}

	s := &Shadow{
		RemoteID:  rid,
		LocalFD:   localFD,
		Kind:      kind,
		Size:      size,
		Buffer:    buf,
		OwnerSide: Sink,
	}
	r.byRemote[rid] = s
	r.byLocal[localFD] = s
	return s
}

// Remove destroys a shadow once the protocol observer signals the resource
// is no longer referenced (spec.md §3).
func (r *Registry) Remove(s *Shadow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byLocal, s.LocalFD)
	delete(r.byRemote, s.RemoteID)
}

// Len reports the number of live shadows, for diagnostics and tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byRemote)
}
