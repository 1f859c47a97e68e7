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

package ulimit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/ulimit"
)

var _ = Describe("Raise", func() {
	It("with want<=0 only queries the current limits", func() {
		soft1, hard1, err := ulimit.Raise(0)
		Expect(err).NotTo(HaveOccurred())
		soft2, hard2, err := ulimit.Raise(-1)
		Expect(err).NotTo(HaveOccurred())
		Expect(soft2).To(Equal(soft1))
		Expect(hard2).To(Equal(hard1))
	})

	It("never lowers the existing soft limit", func() {
		soft, _, err := ulimit.Raise(0)
		Expect(err).NotTo(HaveOccurred())

		gotSoft, _, err := ulimit.Raise(soft - 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(gotSoft).To(Equal(soft))
	})

	It("raises the soft limit up to the current hard limit", func() {
		soft, hard, err := ulimit.Raise(0)
		Expect(err).NotTo(HaveOccurred())
		if hard <= soft {
			Skip("hard limit already equals the soft limit in this sandbox")
		}

		gotSoft, gotHard, err := ulimit.Raise(hard)
		Expect(err).NotTo(HaveOccurred())
		Expect(gotSoft).To(Equal(hard))
		Expect(gotHard).To(Equal(hard))
	})
})
