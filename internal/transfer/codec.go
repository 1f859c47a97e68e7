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

// Codec dispatch, grounded on the teacher's archive/compress package, which
// wraps the same two libraries (klauspost/compress, pierrec/lz4) behind a
// small variant type. spec.md §9 fixes the variant to exactly
// {None, LZ4, Zstd}; compression is always applied per-block, never across
// a dictionary shared between blocks.
package transfer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the closed tagged variant spec.md §9 names.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, sizeHint int) ([]byte, error)
}

// None is the identity codec.
type None struct{}

func (None) Name() string                                { return "none" }
func (None) Compress(src []byte) ([]byte, error)         { return append([]byte(nil), src...), nil }
func (None) Decompress(src []byte, _ int) ([]byte, error) { return append([]byte(nil), src...), nil }

// LZ4 is the frame-format LZ4 codec, matching the teacher's archive/compress
// LZ4 variant: one self-contained frame per call, no shared dictionary. The
// frame format carries its own uncompressed size and handles incompressible
// input internally, which the raw block format does not.
type LZ4 struct {
	Level lz4.CompressionLevel
}

// NewLZ4 builds an LZ4 codec at the given level (0 is fast mode, 1-9 the
// high-compression levels); spec.md §4.E's default is level 1.
func NewLZ4(level int) LZ4 {
	if level <= 0 {
		return LZ4{Level: lz4.Fast}
	}
	if level > 9 {
		level = 9
	}
	return LZ4{Level: lz4.CompressionLevel(1 << (8 + level))}
}

func (c LZ4) Name() string { return "lz4" }

func (c LZ4) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(c.Level)); err != nil {
		return nil, fmt.Errorf("transfer: lz4 level: %w", err)
	}
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("transfer: lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("transfer: lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c LZ4) Decompress(src []byte, _ int) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("transfer: lz4 decompress: %w", err)
	}
	return out, nil
}

// Zstd wraps a reusable encoder/decoder pair; spec.md §4.E's default level
// is 5 (SpeedDefault).
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd builds a Zstd codec at the given encoder level.
func NewZstd(level zstd.EncoderLevel) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("transfer: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("transfer: zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (c *Zstd) Name() string { return "zstd" }

func (c *Zstd) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *Zstd) Decompress(src []byte, _ int) ([]byte, error) {
	return c.dec.DecodeAll(src, nil)
}

// Close releases the zstd decoder's background resources.
func (c *Zstd) Close() {
	c.dec.Close()
}
