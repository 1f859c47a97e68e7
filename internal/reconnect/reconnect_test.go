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

package reconnect_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/chanio"
	"github.com/nabbar/wlproxy/internal/reconnect"
	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/token"
	"github.com/nabbar/wlproxy/internal/worker"
)

var log = rlog.New(rlog.NilLevel)

// newWorker builds a worker over fresh socket pairs without running its
// loop, so Reconnect's one-slot queue is directly observable.
func newWorker(id int) (*worker.Worker, func()) {
	appA, appB, err := chanio.SocketPair()
	Expect(err).NotTo(HaveOccurred())
	chA, chB, err := chanio.SocketPair()
	Expect(err).NotTo(HaveOccurred())

	w := worker.New(id, token.New(true), appB, chB, log)
	return w, func() {
		_ = unix.Close(appA)
		_ = unix.Close(appB)
		_ = unix.Close(chA)
		_ = unix.Close(chB)
	}
}

// acceptToken accepts one connection on a listening socket and returns the
// decoded 16-byte token that opened it.
func acceptToken(listenFD int) *token.Token {
	conn, err := chanio.Accept(listenFD)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = unix.Close(conn) }()

	buf := make([]byte, token.Size)
	Expect(chanio.ReadFull(conn, buf)).To(Succeed())
	tok, err := token.Unmarshal(buf)
	Expect(err).NotTo(HaveOccurred())
	return tok
}

var _ = Describe("control FIFO reader", func() {
	var (
		dir      string
		fifoPath string
		r        *reconnect.FIFOReader
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "wlproxy-fifo-")
		Expect(err).NotTo(HaveOccurred())
		fifoPath = filepath.Join(dir, "ctl")
		r, err = reconnect.NewFIFOReader(fifoPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(r.Close(true)).To(Succeed())
		_ = os.RemoveAll(dir)
	})

	write := func(s string) {
		f, err := os.OpenFile(fifoPath, os.O_WRONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		_, err = f.WriteString(s)
		Expect(err).NotTo(HaveOccurred())
	}

	It("extracts newline- and NUL-terminated paths from concatenated writes", func() {
		write("/run/chan-a.sock\n/run/chan-b.sock\x00")
		paths, oversize, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(oversize).To(BeFalse())
		Expect(paths).To(Equal([]string{"/run/chan-a.sock", "/run/chan-b.sock"}))
	})

	It("holds an unterminated path until its terminator arrives", func() {
		write("/run/part")
		paths, _, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(BeEmpty())

		write("ial.sock\n")
		paths, _, err = r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(Equal([]string{"/run/partial.sock"}))
	})

	It("drops an oversized path and still honors a following valid one", func() {
		long := "/" + strings.Repeat("a", len(unix.RawSockaddrUnix{}.Path)+8)
		write(long + "\n/run/ok.sock\n")

		paths, oversize, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(oversize).To(BeTrue())
		Expect(paths).To(Equal([]string{"/run/ok.sock"}))
	})

	It("survives every writer closing and keeps reading later writes", func() {
		write("/run/first.sock\n")
		paths, _, err := r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(Equal([]string{"/run/first.sock"}))

		write("/run/second.sock\n")
		paths, _, err = r.Poll()
		Expect(err).NotTo(HaveOccurred())
		Expect(paths).To(Equal([]string{"/run/second.sock"}))
	})
})

var _ = Describe("replacement-channel attempt", func() {
	var (
		dir      string
		endpoint string
		listenFD int
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "wlproxy-rc-")
		Expect(err).NotTo(HaveOccurred())
		endpoint = filepath.Join(dir, "new-chan.sock")
		listenFD, err = chanio.Listen(endpoint, 8)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = unix.Close(listenFD)
		_ = os.RemoveAll(dir)
	})

	It("writes an UPDATE-flagged token carrying the original key, then hands the fd over", func() {
		w, cleanup := newWorker(1)
		defer cleanup()

		got := make(chan *token.Token, 1)
		go func() { got <- acceptToken(listenFD) }()

		Expect(reconnect.Attempt(endpoint, w.Token(), w)).To(Succeed())

		var tok *token.Token
		Eventually(got, time.Second).Should(Receive(&tok))
		Expect(tok.Update).To(BeTrue())
		Expect(tok.SameKey(w.Token())).To(BeTrue())
		Expect(w.Token().Update).To(BeFalse())
	})

	It("delivers exactly one fd to each of three live workers", func() {
		for id := 1; id <= 3; id++ {
			w, cleanup := newWorker(id)

			got := make(chan *token.Token, 1)
			go func() { got <- acceptToken(listenFD) }()

			Expect(reconnect.Attempt(endpoint, w.Token(), w)).To(Succeed())

			var tok *token.Token
			Eventually(got, time.Second).Should(Receive(&tok))
			Expect(tok.Update).To(BeTrue())
			Expect(tok.SameKey(w.Token())).To(BeTrue())

			// the one-slot link is now full, proving exactly one fd arrived
			Expect(w.Reconnect(-1)).To(BeFalse())
			cleanup()
		}
	})

	It("fails without blocking when the target has an unconsumed replacement pending", func() {
		w, cleanup := newWorker(4)
		defer cleanup()

		spare, spareB, err := chanio.SocketPair()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(spareB) }()
		Expect(w.Reconnect(spare)).To(BeTrue())

		Expect(reconnect.Attempt(endpoint, w.Token(), w)).To(HaveOccurred())
	})

	It("fails when the endpoint does not exist", func() {
		w, cleanup := newWorker(5)
		defer cleanup()
		Expect(reconnect.Attempt(filepath.Join(dir, "absent.sock"), w.Token(), w)).To(HaveOccurred())
	})
})

var _ = Describe("oneshot reconnection controller", func() {
	It("replaces a running worker's channel when a path arrives on the FIFO", func() {
		dir, err := os.MkdirTemp("", "wlproxy-ctl-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		endpoint := filepath.Join(dir, "new-chan.sock")
		listenFD, err := chanio.Listen(endpoint, 8)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(listenFD) }()

		fifoPath := filepath.Join(dir, "ctl")
		fifo, err := reconnect.NewFIFOReader(fifoPath)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = fifo.Close(true) }()

		appA, appB, err := chanio.SocketPair()
		Expect(err).NotTo(HaveOccurred())
		chA, chB, err := chanio.SocketPair()
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(appA) }()
		defer func() { _ = unix.Close(chA) }()

		w := worker.New(6, token.New(true), appB, chB, log)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = w.Run(ctx) }()

		ctrlCtx, ctrlCancel := context.WithCancel(context.Background())
		runDone := make(chan error, 1)
		go func() { runDone <- reconnect.NewController(fifo, w, log).Run(ctrlCtx) }()

		f, err := os.OpenFile(fifoPath, os.O_WRONLY, 0)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString(endpoint + "\n")
		Expect(err).NotTo(HaveOccurred())
		f.Close()

		conn, err := chanio.Accept(listenFD)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = unix.Close(conn) }()

		buf := make([]byte, token.Size)
		Expect(chanio.ReadFull(conn, buf)).To(Succeed())
		tok, err := token.Unmarshal(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok.Update).To(BeTrue())
		Expect(tok.SameKey(w.Token())).To(BeTrue())

		// app traffic lands on the new channel once the worker swaps; bytes
		// written before the swap go to the old channel and are not replayed
		Eventually(func() bool {
			Expect(chanio.WriteAll(appA, []byte("x"))).To(Succeed())
			pfds := []unix.PollFd{{Fd: int32(conn), Events: unix.POLLIN}}
			n, perr := unix.Poll(pfds, 100)
			return perr == nil && n > 0 && pfds[0].Revents&unix.POLLIN != 0
		}, 2*time.Second).Should(BeTrue())

		got := make([]byte, 16)
		n, err := unix.Read(conn, got)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">", 0))

		ctrlCancel()
		Eventually(runDone, 2*time.Second).Should(Receive(MatchError(context.Canceled)))
	})
})
