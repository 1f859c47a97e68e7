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

package token_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/token"
)

var _ = Describe("connection token", func() {
	It("mints a fresh token with UPDATE unset and FIXED present", func() {
		tok := token.New(true)
		buf := tok.Marshal()
		Expect(buf).To(HaveLen(token.Size))

		parsed, err := token.Unmarshal(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Update).To(BeFalse())
		Expect(parsed.Reconnectable).To(BeTrue())
		Expect(parsed.Version).To(Equal(token.ProtocolVersion))
	})

	It("carries an identical key on a replacement channel with UPDATE set", func() {
		tok := token.New(false)
		upd := tok.WithUpdate()

		Expect(upd.Update).To(BeTrue())
		Expect(upd.SameKey(tok)).To(BeTrue())

		parsed, err := token.Unmarshal(upd.Marshal())
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.Update).To(BeTrue())
		Expect(parsed.Key).To(Equal(tok.Key))
	})

	It("rejects a buffer without the FIXED discriminator", func() {
		buf := make([]byte, token.Size)
		_, err := token.Unmarshal(buf)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a short buffer", func() {
		_, err := token.Unmarshal(make([]byte, 4))
		Expect(err).To(HaveOccurred())
	})

	It("produces distinct keys across successive mixes even from a zero seed", func() {
		k1 := token.NewKey([3]uint32{})
		k2 := token.NewKey(k1)
		Expect(k2).NotTo(Equal(k1))
	})
})
