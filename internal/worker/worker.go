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

// Package worker runs one application connection's session: the per-
// connection "worker" spec.md §4.F forks, and the per-connection main loop
// §1 describes ("the worker uses (C) and (E) to translate fds and stream
// updates"). spec.md §9 explicitly allows replacing the source's
// process-per-connection model with a task-per-connection model provided
// fd lifetimes and registry ownership stay per-session; this module takes
// that option (see DESIGN.md, internal/worker): one Worker is one goroutine
// (plus the forwarding goroutines its Run starts); a Worker holds no
// shadow.Registry or pool.Pool of its own, and the link fd of spec.md §3 becomes a buffered Go channel of replacement
// channel fds rather than a second fd-passing socket, since supervisor and
// worker now share an address space.
//
// The actual display-protocol parsing and fd interception (spec.md §1,
// out of scope) are an external collaborator; this package transparently
// forwards bytes between the application fd and the active channel fd,
// which is exactly what spec.md §1(a) requires of a worker absent that
// collaborator, and is the seam where a real protocol observer plugs in.
package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/token"
)

// Worker owns one application connection end-to-end: the app fd, the
// current channel fd (swappable on reconnect), and the token that
// identifies this session to a replacement channel.
type Worker struct {
	id      int
	session string
	tok     *token.Token
	appFD   int
	log     *rlog.Logger

	mu     sync.Mutex
	chanFD int

	linkCh chan int
	done   chan struct{}
	exit   error
	closed atomic.Bool
}

// New builds a worker for a freshly accepted application connection.
// chanFD is the already-connected, already token-written channel fd handed
// off by the supervisor (spec.md §4.F: "hands the channel fd plus
// application fd to the worker's main loop").
func New(id int, tok *token.Token, appFD, chanFD int, log *rlog.Logger) *Worker {
	return &Worker{
		id:      id,
		session: uuid.NewString(),
		tok:     tok,
		appFD:   appFD,
		chanFD:  chanFD,
		log:     log,
		linkCh:  make(chan int, 1),
		done:    make(chan struct{}),
	}
}

// ID is the synthetic per-process worker identifier standing in for the
// source's child_pid (spec.md §3 connection record), since this worker is a
// goroutine rather than a forked process.
func (w *Worker) ID() int { return w.id }

// Session is a random diagnostic label minted per connection, attached to
// every log line this worker emits. It is a log field only, never part of
// the token or any wire traffic.
func (w *Worker) Session() string { return w.session }

// Token is the session's original (non-update) token, used by the
// reconnection path to mint the UPDATE-flagged replacement.
func (w *Worker) Token() *token.Token { return w.tok }

// Done is closed when the worker's main loop returns, standing in for the
// supervisor's non-blocking child-reaper sweep (spec.md §4.F).
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns the reason the worker exited, valid only after Done is
// closed.
func (w *Worker) Err() error { return w.exit }

// Reconnect hands a freshly connected, UPDATE-token-written channel fd to
// the worker (spec.md §4.G step 5 / §4.F's multi-mode fold-in of the
// controller's role into the supervisor). It is non-blocking: if the
// worker has not yet consumed a previously queued reconnect, the new fd is
// rejected and the caller closes it; per spec.md §4.G the worker will pick
// up the next trigger instead.
func (w *Worker) Reconnect(newChanFD int) bool {
	select {
	case w.linkCh <- newChanFD:
		return true
	default:
		return false
	}
}

// Close releases the worker's application fd, its current channel fd, and
// any replacement fd still queued on the link. Call only after Done is
// closed. A second Close is a detected programming error, per the
// exactly-once rule of spec.md §5.
func (w *Worker) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("worker %d: closed twice", w.id)
	}
	select {
	case fd := <-w.linkCh:
		_ = unix.Close(fd)
	default:
	}
	_ = unix.Close(w.appFD)
	return unix.Close(w.currentChanFD())
}

// Run forwards bytes between the application fd and the active channel fd
// until the application disconnects, the channel reports a desync-grade
// error, or ctx is cancelled. A pending Reconnect swaps the active channel
// fd without tearing down the application side, which is the entire point
// of spec.md §1's "channel reconnection" feature.
//
// The app-to-channel direction runs as a single goroutine for the worker's
// whole lifetime: a blocking Read on appFD cannot be interrupted to retarget
// it at a new destination fd, so restarting that direction per reconnect
// would leave it stuck waiting on application traffic that may not arrive
// for an arbitrary time, stalling the reconnect indefinitely. Only the
// channel-to-app direction, whose source fd is what actually changes on
// reconnect, is torn down and rebuilt per channel generation.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)

	appErrCh := make(chan error, 1)
	go func() { appErrCh <- w.pumpAppToChannel(ctx) }()

	for {
		cur := w.currentChanFD()
		dirCtx, cancel := context.WithCancel(ctx)
		chanErrCh := make(chan error, 1)

		go func() { chanErrCh <- copyLoop(dirCtx, cur, w.appFD) }()

		select {
		case <-ctx.Done():
			cancel()
			_ = unix.Shutdown(cur, unix.SHUT_RDWR)
			_ = unix.Shutdown(w.appFD, unix.SHUT_RDWR)
			<-chanErrCh
			<-appErrCh
			w.exit = ctx.Err()
			return w.exit

		case newFD := <-w.linkCh:
			cancel()
			_ = unix.Shutdown(cur, unix.SHUT_RDWR)
			<-chanErrCh
			_ = unix.Close(cur)
			w.setChanFD(newFD)
			w.log.Entry(rlog.InfoLevel, "channel reconnected").
				Field("worker", w.id).Field("session", w.session).Log()
			continue

		case e := <-chanErrCh:
			cancel()
			_ = unix.Shutdown(w.appFD, unix.SHUT_RDWR)
			<-appErrCh
			if e != nil && e != io.EOF {
				w.exit = fmt.Errorf("worker %d: %w", w.id, e)
			}
			return w.exit

		case e := <-appErrCh:
			cancel()
			_ = unix.Shutdown(cur, unix.SHUT_RDWR)
			<-chanErrCh
			if e != nil && e != io.EOF {
				w.exit = fmt.Errorf("worker %d: %w", w.id, e)
			}
			return w.exit
		}
	}
}

// pumpAppToChannel forwards application bytes onto whichever channel fd is
// current at the moment of each write. A write that lands exactly during a
// reconnect race is dropped rather than retried: spec.md §9 leaves in-flight
// data on a channel swap undefined, and DESIGN.md settles that open question
// against a retransmission buffer, so re-sending here would be inconsistent
// with that decision and risks a duplicate partial write on the new channel.
func (w *Worker) pumpAppToChannel(ctx context.Context) error {
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := unix.Read(w.appFD, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}

		dst := w.currentChanFD()
		if err = writeAll(dst, buf[:n]); err != nil {
			if w.currentChanFD() != dst {
				w.log.Entry(rlog.WarnLevel, "dropped in-flight bytes across channel reconnect").
					Field("worker", w.id).Field("session", w.session).Log()
				continue
			}
			return err
		}
	}
}

func (w *Worker) currentChanFD() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chanFD
}

func (w *Worker) setChanFD(fd int) {
	w.mu.Lock()
	w.chanFD = fd
	w.mu.Unlock()
}

// copyLoop transparently forwards bytes from src to dst until either side
// errs out, including the deliberate unix.Shutdown Run uses on the channel
// fd to unblock a pending Read on reconnect or shutdown. Used only for the
// channel-to-app direction; see pumpAppToChannel for the other direction.
func copyLoop(ctx context.Context, src, dst int) error {
	buf := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := unix.Read(src, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
		if err = writeAll(dst, buf[:n]); err != nil {
			return err
		}
	}
}

func writeAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
