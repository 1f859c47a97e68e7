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

package pool_test

import (
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/wlproxy/internal/pool"
)

var _ = Describe("Pool", func() {
	It("runs every submitted task exactly once", func() {
		p := pool.New(4)
		var n int64
		for i := 0; i < 50; i++ {
			p.Submit(func() { atomic.AddInt64(&n, 1) })
		}
		p.WaitIdle()
		Expect(atomic.LoadInt64(&n)).To(Equal(int64(50)))
		p.Stop()
	})

	It("WaitIdle returns immediately on an empty pool", func() {
		p := pool.New(2)
		p.WaitIdle()
		p.Stop()
	})

	It("allows the caller to opportunistically steal and run tasks inline", func() {
		p := pool.New(1)
		var ran int32
		block := make(chan struct{})
		p.Submit(func() {
			<-block
			atomic.AddInt32(&ran, 1)
		})
		for i := 0; i < 10; i++ {
			p.Submit(func() { atomic.AddInt32(&ran, 1) })
		}
		close(block)
		p.WaitIdle()
		Expect(atomic.LoadInt32(&ran)).To(Equal(int32(11)))
		p.Stop()
	})

	It("Stop terminates every worker goroutine without panicking", func() {
		p := pool.New(8)
		p.WaitIdle()
		Expect(func() { p.Stop() }).ToNot(Panic())
	})
})
