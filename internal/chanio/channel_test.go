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

package chanio_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/chanio"
)

var _ = Describe("fd passing over a socket pair", func() {
	It("delivers the passed fd to the peer", func() {
		a, b, err := chanio.SocketPair()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(a) }()
		defer func() { _ = unix.Close(b) }()

		tmp, err := os.CreateTemp("", "chanio-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.Remove(tmp.Name())
		_, err = tmp.WriteString("hello")
		Expect(err).NotTo(HaveOccurred())

		Expect(chanio.SendFD(a, int(tmp.Fd()))).To(Succeed())
		got, err := chanio.RecvFD(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNumerically(">=", 0))

		peer := os.NewFile(uintptr(got), "peer")
		defer peer.Close()
		buf := make([]byte, 5)
		_, err = peer.ReadAt(buf, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf)).To(Equal("hello"))
	})

	It("rejects a second Close on the same FD wrapper", func() {
		a, b, err := chanio.SocketPair()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(b) }()

		f := chanio.NewFD(a)
		Expect(f.Close()).To(Succeed())
		Expect(f.Close()).To(HaveOccurred())
	})
})
