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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/transfer"
)

var _ = Describe("Frame encode/decode", func() {
	DescribeTable("round-trips a sample of payload lengths from 0 to 40",
		func(n int) {
			payload := bytes.Repeat([]byte{0xAB}, n)
			frame, err := transfer.Encode(transfer.PartialRegion, 7, payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(frame) % 16).To(Equal(0))

			blk, consumed, err := transfer.Decode(frame)
			Expect(err).NotTo(HaveOccurred())
			Expect(consumed).To(Equal(len(frame)))
			Expect(blk.Type).To(Equal(transfer.PartialRegion))
			Expect(blk.XID).To(Equal(int32(7)))
			Expect(blk.Payload).To(Equal(payload))
		},
		Entry("empty", 0), Entry("n=1", 1), Entry("n=4", 4), Entry("n=12", 12),
		Entry("n=16", 16), Entry("n=17", 17), Entry("n=40", 40),
	)

	It("preserves trailing zero bytes in the payload", func() {
		payload := []byte{1, 2, 0, 0, 0}
		frame, err := transfer.Encode(transfer.WholeObject, 1, payload)
		Expect(err).NotTo(HaveOccurred())
		blk, _, err := transfer.Decode(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(blk.Payload).To(Equal(payload))
	})

	It("rejects nonzero padding bytes", func() {
		frame, err := transfer.Encode(transfer.Ack, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		frame[len(frame)-1] = 0x01
		_, _, err = transfer.Decode(frame)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a frame claiming more bytes than are available", func() {
		frame, err := transfer.Encode(transfer.Ack, 0, []byte("hi"))
		Expect(err).NotTo(HaveOccurred())
		_, _, err = transfer.Decode(frame[:12])
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown type tag", func() {
		frame, err := transfer.Encode(transfer.Ack, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		frame[3] |= 0xF0 // push the type nibble past Ack
		_, _, err = transfer.Decode(frame)
		Expect(err).To(HaveOccurred())
	})
})
