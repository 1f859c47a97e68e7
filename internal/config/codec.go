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

package config

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/nabbar/wlproxy/internal/transfer"
)

// BuildCodec selects the tagged codec variant spec.md §9 fixes (None, LZ4,
// Zstd) from the resolved configuration. The returned closer is non-nil
// whenever err is nil (a no-op for None and LZ4) and must be called at
// shutdown to release a Zstd decoder's background goroutines.
func BuildCodec(c *Config) (transfer.Codec, func(), error) {
	switch c.Codec {
	case "", "none":
		return transfer.None{}, func() {}, nil
	case "lz4":
		return transfer.NewLZ4(c.CodecLevel), func() {}, nil
	case "zstd":
		z, err := transfer.NewZstd(zstd.EncoderLevelFromZstd(c.CodecLevel))
		if err != nil {
			return nil, nil, fmt.Errorf("config: build zstd codec: %w", err)
		}
		return z, z.Close, nil
	default:
		return nil, nil, fmt.Errorf("config: unknown codec %q", c.Codec)
	}
}
