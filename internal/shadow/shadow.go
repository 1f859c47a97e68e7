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

// Package shadow implements the per-resource mirror registry (spec.md §4.C):
// a bidirectional map between local fds and remote ids, with per-shadow
// damage tracking. Grounded on original_source/src/server.c's connection
// bookkeeping style (plain structs + explicit ownership) and on the
// teacher's concurrency idiom of a mutex guarding plain maps (seen
// throughout archive/compress's atomic.Bool-guarded engine state).
package shadow

import "fmt"

// Kind identifies what a shadowed local fd actually is.
type Kind uint8

const (
	KindFile Kind = iota
	KindDmabuf
	KindPipeR
	KindPipeW
	KindPipeRW
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDmabuf:
		return "dmabuf"
	case KindPipeR:
		return "pipe_r"
	case KindPipeW:
		return "pipe_w"
	case KindPipeRW:
		return "pipe_rw"
	default:
		return "unknown"
	}
}

// Side identifies which end of the channel a shadow belongs to.
type Side uint8

const (
	Source Side = iota
	Sink
)

// BufferMeta captures a hardware buffer's backing metadata, required to
// reconstruct a dmabuf allocation on the sink side (spec.md §4.C).
type BufferMeta struct {
	Width    uint32
	Height   uint32
	Format   uint32
	Modifier uint64
	Planes   int
	Strides  []uint32
	Offsets  []uint32
}

// Shadow is the proxy-side record tracking one application-visible resource
// and its remote mirror (spec.md §3).
type Shadow struct {
	RemoteID  int32
	LocalFD   int
	Kind      Kind
	Size      int64
	OwnerSide Side

	Buffer *BufferMeta
	Hash   []byte

	dirty  bool
	damage Damage
}

// Dirty reports whether the shadow has unflushed damage.
func (s *Shadow) Dirty() bool { return s.dirty }

// MarkDirty flags the shadow and records start..end as damaged. A whole
// equal to true ignores start/end and marks the entire object, per the
// whole-object sentinel (spec.md §3).
func (s *Shadow) MarkDirty(whole bool, start, end int64) {
	s.dirty = true
	if whole {
		s.damage.MarkWhole()
		return
	}
	s.damage.Add(start, end)
}

// DamageSet returns the shadow's current damage set for inspection by the
// transfer engine's collect_update.
func (s *Shadow) DamageSet() *Damage {
	return &s.damage
}

// Finish clears the dirty flag and damage set. Must only be called after
// every in-flight task for this shadow has completed (spec.md §4.E
// finish_update).
func (s *Shadow) Finish() {
	s.dirty = false
	s.damage.Clear()
}

// Grow records a size increase observed during collection, ahead of the
// size-extension block the transfer engine must emit before any content
// block in the same pass (spec.md §4.E).
func (s *Shadow) Grow(newSize int64) bool {
	if newSize <= s.Size {
		return false
	}
	s.Size = newSize
	return true
}

func (s *Shadow) String() string {
	return fmt.Sprintf("shadow{rid=%d kind=%s size=%d side=%d}", s.RemoteID, s.Kind, s.Size, s.OwnerSide)
}
