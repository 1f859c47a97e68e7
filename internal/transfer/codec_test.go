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

package transfer_test

import (
	"bytes"
	"math/rand"

	"github.com/klauspost/compress/zstd"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/transfer"
)

var _ = Describe("Codec variants", func() {
	sample := func(n int, seed int64) []byte {
		r := rand.New(rand.NewSource(seed))
		buf := make([]byte, n)
		r.Read(buf)
		return buf
	}

	It("round-trips through None unchanged", func() {
		src := sample(4096, 1)
		c := transfer.None{}
		out, err := c.Compress(src)
		Expect(err).NotTo(HaveOccurred())
		back, err := c.Decompress(out, len(src))
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(src))
	})

	It("round-trips through LZ4 for both compressible and random content", func() {
		c := transfer.NewLZ4(1)
		for _, src := range [][]byte{bytes.Repeat([]byte{0x42}, 8192), sample(8192, 2)} {
			out, err := c.Compress(src)
			Expect(err).NotTo(HaveOccurred())
			back, err := c.Decompress(out, len(src))
			Expect(err).NotTo(HaveOccurred())
			Expect(back).To(Equal(src))
		}
	})

	It("round-trips through Zstd", func() {
		c, err := transfer.NewZstd(zstd.SpeedDefault)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		src := sample(16384, 3)
		out, err := c.Compress(src)
		Expect(err).NotTo(HaveOccurred())
		back, err := c.Decompress(out, len(src))
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(src))
	})
})
