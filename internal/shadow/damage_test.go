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

package shadow_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/shadow"
)

var _ = Describe("Damage", func() {
	It("starts empty", func() {
		var d shadow.Damage
		Expect(d.Empty()).To(BeTrue())
	})

	It("coalesces overlapping and adjacent intervals", func() {
		var d shadow.Damage
		d.Add(0, 10)
		d.Add(10, 20)
		d.Add(5, 8)
		Expect(d.Ranges()).To(Equal([]shadow.Interval{{Start: 0, End: 20}}))
	})

	It("keeps disjoint intervals separate", func() {
		var d shadow.Damage
		d.Add(0, 5)
		d.Add(100, 105)
		Expect(d.Ranges()).To(HaveLen(2))
	})

	It("collapses to whole-object and discards partial ranges", func() {
		var d shadow.Damage
		d.Add(0, 5)
		d.MarkWhole()
		Expect(d.IsWhole()).To(BeTrue())
		Expect(d.Ranges()).To(BeNil())
	})

	It("clears back to empty", func() {
		var d shadow.Damage
		d.Add(0, 5)
		d.Clear()
		Expect(d.Empty()).To(BeTrue())
	})
})
