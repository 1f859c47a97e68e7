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

// Package token implements the 16-byte connection-token handshake that
// opens every channel (spec.md §4.A, §6). Grounded on
// original_source/src/server.c's conntoken_header/fill_random_key, carried
// into Go idiom: crypto/rand.Read in place of /dev/urandom, explicit
// little-endian encode/decode in place of a packed C struct.
package token

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// Size is the fixed wire size of a token: one 32-bit header plus three
// 32-bit key words.
const Size = 16

// ProtocolVersion is carried in the header's top 16 bits.
const ProtocolVersion uint16 = 1

const (
	bitUpdate        uint32 = 1 << 0
	bitReconnectable uint32 = 1 << 1
	// fixedMagic is the discriminator constant every valid header must
	// carry, distinct from the flag bits above.
	fixedMagic uint32 = 0x0AC0
)

// Token is the in-memory form of the 16-byte handshake.
type Token struct {
	Version       uint16
	Reconnectable bool
	Update        bool
	Key           [3]uint32
}

func header(version uint16, reconnectable, update bool) uint32 {
	h := uint32(version) << 16
	if update {
		h |= bitUpdate
	}
	if reconnectable {
		h |= bitReconnectable
	}
	return h | fixedMagic
}

// NewKey mixes a previous key (zero value for a session's first token) with
// small distinct primes, the process id and the current time, then
// overwrites with bytes from the OS CSPRNG when available. A CSPRNG read
// failure is not fatal: the mixed fallback is used as-is, matching
// server.c's fill_random_key, which ignores read()'s error on /dev/urandom.
func NewKey(prev [3]uint32) [3]uint32 {
	k := prev
	k[0] *= 13
	k[1] *= 17
	k[2] *= 29

	now := time.Now()
	k[0] += uint32(os.Getpid())
	k[1] += 1 + uint32(now.Unix())
	k[2] += 1 + uint32(now.Nanosecond())

	var buf [12]byte
	if _, err := rand.Read(buf[:]); err == nil {
		k[0] = binary.LittleEndian.Uint32(buf[0:4])
		k[1] = binary.LittleEndian.Uint32(buf[4:8])
		k[2] = binary.LittleEndian.Uint32(buf[8:12])
	}

	return k
}

// New mints the first token of a fresh session: UPDATE is always unset,
// per the invariant in spec.md §3.
func New(reconnectable bool) *Token {
	return &Token{
		Version:       ProtocolVersion,
		Reconnectable: reconnectable,
		Update:        false,
		Key:           NewKey([3]uint32{}),
	}
}

// WithUpdate returns a copy of t with the UPDATE bit set and the identical
// key words, for writing onto a replacement channel (spec.md §3, §9).
func (t *Token) WithUpdate() *Token {
	cp := *t
	cp.Update = true
	return &cp
}

// Marshal encodes the token as 16 little-endian bytes.
func (t *Token) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], header(t.Version, t.Reconnectable, t.Update))
	binary.LittleEndian.PutUint32(buf[4:8], t.Key[0])
	binary.LittleEndian.PutUint32(buf[8:12], t.Key[1])
	binary.LittleEndian.PutUint32(buf[12:16], t.Key[2])
	return buf
}

// Unmarshal decodes and validates a 16-byte token. An error is returned if
// the buffer is short or the FIXED discriminator is absent.
func Unmarshal(buf []byte) (*Token, error) {
	if len(buf) < Size {
		return nil, fmt.Errorf("token: short buffer: %d bytes", len(buf))
	}

	h := binary.LittleEndian.Uint32(buf[0:4])
	if h&fixedMagic != fixedMagic {
		return nil, fmt.Errorf("token: missing FIXED discriminator")
	}

	return &Token{
		Version:       uint16(h >> 16),
		Reconnectable: h&bitReconnectable != 0,
		Update:        h&bitUpdate != 0,
		Key: [3]uint32{
			binary.LittleEndian.Uint32(buf[4:8]),
			binary.LittleEndian.Uint32(buf[8:12]),
			binary.LittleEndian.Uint32(buf[12:16]),
		},
	}, nil
}

// SameKey reports whether two tokens carry byte-identical key words, the
// check a replacement channel's token must pass against the original
// (spec.md §8 invariant 2).
func (t *Token) SameKey(o *Token) bool {
	return t.Key == o.Key
}
