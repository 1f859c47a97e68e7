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

// Package transfer implements the collect/compress/frame → apply pipeline
// spec.md §4.E describes. Block framing is grounded directly on
// original_source/src/server.c's transfer-block header (a packed u32 type+
// size word followed by a 32-bit xid), reproduced here as a 16-byte-aligned
// frame: the alignment and zero-padding rule comes from the same source.
package transfer

import (
	"encoding/binary"
	"fmt"
)

// Type identifies a block's payload interpretation, per spec.md §6's
// "Update-block framing" list.
type Type uint8

const (
	WholeObject Type = iota
	PartialRegion
	SizeExtension
	PipeChunk
	Hangup
	Ack
)

func (t Type) String() string {
	switch t {
	case WholeObject:
		return "whole-object"
	case PartialRegion:
		return "partial-region"
	case SizeExtension:
		return "size-extension"
	case PipeChunk:
		return "pipe-chunk"
	case Hangup:
		return "hangup"
	case Ack:
		return "ack"
	default:
		return "unknown"
	}
}

const (
	align     = 16
	headerLen = 8 // header u32 + xid i32
	typeShift = 28
	sizeMask  = 0x0FFFFFFF
)

// Block is one decoded transfer-engine frame.
type Block struct {
	Type    Type
	XID     int32
	Payload []byte
}

func padLen(n int) int {
	r := n % align
	if r == 0 {
		return 0
	}
	return align - r
}

// Encode builds a 16-byte-aligned frame: header u32 (type<<28|size), xid
// i32, payload, zero-pad. size counts the header and payload only; the
// frame then carries zero padding up to the next 16-byte boundary, so the
// payload's exact length survives even when it ends in zero bytes.
func Encode(t Type, xid int32, payload []byte) ([]byte, error) {
	size := headerLen + len(payload)
	if size > sizeMask {
		return nil, fmt.Errorf("transfer: frame size %d exceeds header size field", size)
	}

	buf := make([]byte, size+padLen(size))
	header := uint32(t)<<typeShift | uint32(size)&sizeMask
	binary.LittleEndian.PutUint32(buf[0:4], header)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(xid))
	copy(buf[headerLen:], payload)
	return buf, nil
}

// Decode parses one frame from the front of buf and returns the block plus
// the number of bytes consumed (the frame's padded extent). It rejects
// truncated frames, nonzero padding and unknown types as peer desync per
// spec.md §7.
func Decode(buf []byte) (Block, int, error) {
	if len(buf) < headerLen {
		return Block{}, 0, fmt.Errorf("transfer: %w: short frame header (%d bytes)", ErrPeerDesync, len(buf))
	}
	header := binary.LittleEndian.Uint32(buf[0:4])
	xid := int32(binary.LittleEndian.Uint32(buf[4:8]))
	size := int(header & sizeMask)
	typ := Type(header >> typeShift)

	if size < headerLen {
		return Block{}, 0, fmt.Errorf("transfer: %w: bad frame size %d", ErrPeerDesync, size)
	}
	consumed := size + padLen(size)
	if consumed > len(buf) {
		return Block{}, 0, fmt.Errorf("transfer: %w: frame claims %d bytes, only %d available", ErrPeerDesync, consumed, len(buf))
	}
	if typ > Ack {
		return Block{}, 0, fmt.Errorf("transfer: %w: unknown frame type %d", ErrPeerDesync, header>>typeShift)
	}
	for _, b := range buf[size:consumed] {
		if b != 0 {
			return Block{}, 0, fmt.Errorf("transfer: %w: nonzero padding byte in frame for xid=%d", ErrPeerDesync, xid)
		}
	}

	payload := make([]byte, size-headerLen)
	copy(payload, buf[headerLen:size])

	return Block{Type: typ, XID: xid, Payload: payload}, consumed, nil
}
