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

// Engine implements the four top-level operations of spec.md §4.E:
// collect_update, finish_update, apply_update and combine_transfer_blocks
// (the latter lives in buffer.go as Buffer.Combine). Grounded on
// original_source/src/server.c's update-collection loop for the ordering
// and size-extension-before-content rule, and on the teacher's pattern of
// injecting the actual I/O (mmap, dmabuf map/unmap) as a small collaborator
// interface rather than hard-coding a platform call, since mmap/dmabuf
// access is an out-of-scope external collaborator per spec.md §1.
package transfer

import (
	"encoding/binary"
	"fmt"

	"github.com/nabbar/wlproxy/internal/pool"
	"github.com/nabbar/wlproxy/internal/shadow"
)

// MaxBlockPayload bounds a single block's uncompressed content, keeping
// per-task work compression-friendly and bounding worst-case memory use
// (spec.md §4.E: "partitions it into compression-friendly blocks").
const MaxBlockPayload = 64 * 1024

// wholePrefixLen is the whole-object payload prefix: declared total size
// (u64), kind (u8), zero-padded so the content stays 8-byte aligned.
const wholePrefixLen = 16

// RegionReader reads [start, end) of a shadow's backing resource. The
// session supervisor supplies the concrete implementation (mmap for files,
// the mapped hardware buffer for dmabufs, a ring for pipes).
type RegionReader func(s *shadow.Shadow, start, end int64) ([]byte, error)

// ResourceWriter applies decoded update content to the local backing
// resource and allocates one when a sink side first learns of a shadow.
type ResourceWriter interface {
	// WriteWhole writes the leading chunk of a whole-object pass at offset
	// 0. For an object larger than MaxBlockPayload, the remaining chunks
	// arrive as ordinary PartialRegion blocks against the same xid.
	WriteWhole(s *shadow.Shadow, content []byte) error
	WriteRegion(s *shadow.Shadow, offset int64, content []byte) error
	Extend(s *shadow.Shadow, newSize int64) error
	// Allocate creates the local backing resource for a previously unseen
	// remote id, of the declared size and kind: a shared-memory file, a
	// hardware-buffer allocation, or a pipe pair with only the required end
	// kept open (spec.md §4.E's whole-object apply path).
	Allocate(rid int32, kind shadow.Kind, size int64, buf *shadow.BufferMeta) (localFD int, err error)
}

type job struct {
	typ   Type
	start int64
	end   int64
}

func splitRange(typ Type, start, end int64) []job {
	var jobs []job
	for s := start; s < end; s += MaxBlockPayload {
		e := s + MaxBlockPayload
		if e > end {
			e = end
		}
		jobs = append(jobs, job{typ: typ, start: s, end: e})
	}
	return jobs
}

// CollectUpdate is collect_update: for a dirty shadow, it walks the damage
// set, partitions it into blocks, and enqueues one pool task per block.
// currentSize is the backing resource's size as observed at collection
// time; when it exceeds the shadow's last-known size, a size-extension
// block is emitted ahead of any content block in the same pass. An empty
// damage set on a dirty shadow is not an error: it produces a zero-slot
// buffer (spec.md §4.E edge case).
func CollectUpdate(p *pool.Pool, s *shadow.Shadow, codec Codec, currentSize int64, read RegionReader) *Buffer {
	if !s.Dirty() || s.DamageSet().Empty() {
		return NewBuffer(0)
	}

	var jobs []job
	if s.Grow(currentSize) {
		jobs = append(jobs, job{typ: SizeExtension})
	}

	damage := s.DamageSet()
	if damage.IsWhole() {
		whole := splitRange(WholeObject, 0, s.Size)
		// Only the first chunk carries the WholeObject tag (and the
		// declared total size, for sink-side allocation); a large object
		// spanning more than one block continues as PartialRegion chunks
		// so each carries its own offset.
		for i := 1; i < len(whole); i++ {
			whole[i].typ = PartialRegion
		}
		jobs = append(jobs, whole...)
	} else {
		for _, r := range damage.Ranges() {
			jobs = append(jobs, splitRange(PartialRegion, r.Start, r.End)...)
		}
	}

	buf := NewBuffer(len(jobs))
	for i, j := range jobs {
		i, j := i, j
		p.Submit(func() {
			frame, err := encodeJob(s, codec, j, read)
			if err != nil {
				buf.Fail(i, err)
				return
			}
			buf.Set(i, frame)
		})
	}
	return buf
}

func encodeJob(s *shadow.Shadow, codec Codec, j job, read RegionReader) ([]byte, error) {
	if j.typ == SizeExtension {
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, uint64(s.Size))
		return Encode(SizeExtension, s.RemoteID, payload)
	}

	raw, err := read(s, j.start, j.end)
	if err != nil {
		return nil, fmt.Errorf("transfer: read region [%d,%d) of %s: %w", j.start, j.end, s, err)
	}
	content, err := codec.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("transfer: compress region [%d,%d) of %s: %w", j.start, j.end, s, err)
	}

	if j.typ == WholeObject {
		// The first chunk of a whole-object pass carries the declared
		// total size and kind ahead of its content, so the sink can
		// allocate the full resource (file, dmabuf or pipe pair) before
		// any later PartialRegion chunk arrives. The prefix is padded to
		// 16 bytes to keep the content 8-byte aligned.
		payload := make([]byte, wholePrefixLen+len(content))
		binary.LittleEndian.PutUint64(payload[:8], uint64(s.Size))
		payload[8] = byte(s.Kind)
		copy(payload[wholePrefixLen:], content)
		return Encode(WholeObject, s.RemoteID, payload)
	}

	payload := make([]byte, 8+len(content))
	binary.LittleEndian.PutUint64(payload[:8], uint64(j.start))
	copy(payload[8:], content)
	return Encode(PartialRegion, s.RemoteID, payload)
}

// FinishUpdate is finish_update: it blocks until every task submitted by
// the matching CollectUpdate call has completed (via the pool's main-thread
// participation), then clears the shadow's dirty flag and damage set. buf is
// the buffer CollectUpdate returned for the same pass: if any of its tasks
// recorded a failure, the pass is abandoned and the shadow stays dirty for
// retry on the next pass (spec.md §7 per-task errors).
func FinishUpdate(p *pool.Pool, s *shadow.Shadow, buf *Buffer) error {
	p.WaitIdle()
	if err := buf.Err(); err != nil {
		return err
	}
	s.Finish()
	return nil
}

// ApplyUpdate is apply_update: it resolves or creates the shadow for xid,
// decompresses the block per the pool's codec, and writes the result into
// the local backing resource via w.
func ApplyUpdate(reg *shadow.Registry, side shadow.Side, codec Codec, w ResourceWriter, blk Block) error {
	s, ok := reg.GetByRemoteID(blk.XID)

	switch blk.Type {
	case WholeObject:
		if len(blk.Payload) < wholePrefixLen {
			return fmt.Errorf("transfer: %w: truncated whole-object payload for xid=%d", ErrPeerDesync, blk.XID)
		}
		totalSize := int64(binary.LittleEndian.Uint64(blk.Payload[:8]))
		kind := shadow.Kind(blk.Payload[8])
		content, err := codec.Decompress(blk.Payload[wholePrefixLen:], 0)
		if err != nil {
			return fmt.Errorf("transfer: decompress whole-object xid=%d: %w", blk.XID, err)
		}
		if !ok {
			localFD, err := w.Allocate(blk.XID, kind, totalSize, nil)
			if err != nil {
				return fmt.Errorf("transfer: allocate sink resource for xid=%d: %w", blk.XID, err)
			}
			s = reg.CreateForRemoteID(blk.XID, localFD, kind, totalSize, nil)
		}
		return w.WriteWhole(s, content)

	case PartialRegion:
		if !ok {
			return fmt.Errorf("transfer: %w: partial-region block for unknown xid=%d", ErrPeerDesync, blk.XID)
		}
		if len(blk.Payload) < 8 {
			return fmt.Errorf("transfer: %w: truncated partial-region payload for xid=%d", ErrPeerDesync, blk.XID)
		}
		offset := int64(binary.LittleEndian.Uint64(blk.Payload[:8]))
		content, err := codec.Decompress(blk.Payload[8:], 0)
		if err != nil {
			return fmt.Errorf("transfer: decompress partial-region xid=%d: %w", blk.XID, err)
		}
		return w.WriteRegion(s, offset, content)

	case SizeExtension:
		if !ok {
			return fmt.Errorf("transfer: %w: size-extension block for unknown xid=%d", ErrPeerDesync, blk.XID)
		}
		if len(blk.Payload) < 8 {
			return fmt.Errorf("transfer: %w: truncated size-extension payload for xid=%d", ErrPeerDesync, blk.XID)
		}
		newSize := int64(binary.LittleEndian.Uint64(blk.Payload))
		s.Grow(newSize)
		return w.Extend(s, newSize)

	case PipeChunk:
		if !ok {
			return fmt.Errorf("transfer: %w: pipe-chunk block for unknown xid=%d", ErrPeerDesync, blk.XID)
		}
		content, err := codec.Decompress(blk.Payload, 0)
		if err != nil {
			return fmt.Errorf("transfer: decompress pipe-chunk xid=%d: %w", blk.XID, err)
		}
		return w.WriteRegion(s, 0, content)

	case Hangup, Ack:
		return nil

	default:
		return fmt.Errorf("transfer: %w: unknown block type %d for xid=%d", ErrPeerDesync, blk.Type, blk.XID)
	}
}
