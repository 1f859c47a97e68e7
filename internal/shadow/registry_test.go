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

var _ = Describe("Registry", func() {
	It("is idempotent for the same local fd", func() {
		r := shadow.NewRegistry()
		detect := func(fd int) (shadow.Kind, int64, *shadow.BufferMeta, error) {
			return shadow.KindFile, 4096, nil, nil
		}

		s1, err := r.TranslateFD(shadow.Source, 7, detect)
		Expect(err).NotTo(HaveOccurred())
		s2, err := r.TranslateFD(shadow.Source, 7, detect)
		Expect(err).NotTo(HaveOccurred())
		Expect(s1).To(BeIdenticalTo(s2))
	})

	It("assigns strictly positive, monotonically increasing remote ids", func() {
		r := shadow.NewRegistry()
		detect := func(fd int) (shadow.Kind, int64, *shadow.BufferMeta, error) {
			return shadow.KindFile, 0, nil, nil
		}

		s1, _ := r.TranslateFD(shadow.Source, 1, detect)
		s2, _ := r.TranslateFD(shadow.Source, 2, detect)
		Expect(s1.RemoteID).To(BeNumerically(">", 0))
		Expect(s2.RemoteID).To(BeNumerically(">", s1.RemoteID))
	})

	It("looks up by remote id in O(1)", func() {
		r := shadow.NewRegistry()
		detect := func(fd int) (shadow.Kind, int64, *shadow.BufferMeta, error) {
			return shadow.KindFile, 0, nil, nil
		}
		s1, _ := r.TranslateFD(shadow.Source, 1, detect)

		got, ok := r.GetByRemoteID(s1.RemoteID)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(s1))

		_, ok = r.GetByRemoteID(9999)
		Expect(ok).To(BeFalse())
	})

	It("lazily creates a sink-side shadow on first apply", func() {
		r := shadow.NewRegistry()
		_, ok := r.GetByRemoteID(42)
		Expect(ok).To(BeFalse())

		s := r.CreateForRemoteID(42, 5, shadow.KindFile, 1024, nil)
		Expect(s.OwnerSide).To(Equal(shadow.Sink))

		again := r.CreateForRemoteID(42, 5, shadow.KindFile, 1024, nil)
		Expect(again).To(BeIdenticalTo(s))
	})
})
