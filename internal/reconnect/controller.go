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

package reconnect

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/errs"
	"github.com/nabbar/wlproxy/internal/metrics"
	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/token"
	"github.com/nabbar/wlproxy/internal/worker"
)

// pollTimeoutMS bounds how long Controller.Run blocks in unix.Poll between
// checks of ctx and the worker's Done channel; the source's forked helper
// instead relies on the worker's own hangup to unblock poll(), which a
// single Go process can check more directly.
const pollTimeoutMS = 500

// Controller is the forked helper of spec.md §4.G, run here as a goroutine
// per §9's task-per-connection option: it owns the control FIFO, watches
// one worker's link, and replaces that worker's channel on request.
type Controller struct {
	fifo *FIFOReader
	w    *worker.Worker
	tok  *token.Token
	log  *rlog.Logger

	// Metrics is optional; when set, every attempt increments its
	// Reconnects counter regardless of outcome (spec.md's domain-stack
	// Prometheus wiring, SPEC_FULL.md §3).
	Metrics *metrics.Metrics
}

// NewController builds a reconnection controller for the oneshot session's
// single worker.
func NewController(fifo *FIFOReader, w *worker.Worker, log *rlog.Logger) *Controller {
	return &Controller{fifo: fifo, w: w, tok: w.Token(), log: log}
}

// Run implements spec.md §4.G's per-iteration state machine: poll the
// control fifo and the worker's liveness; exit once the worker is gone;
// otherwise parse and act on any new endpoint path, tolerating every
// failure as logged-and-continue.
func (c *Controller) Run(ctx context.Context) error {
	pfds := []unix.PollFd{{Fd: int32(c.fifo.FD()), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.w.Done():
			return nil
		default:
		}

		n, err := unix.Poll(pfds, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reconnect: poll control fifo: %w", err)
		}
		if n == 0 {
			continue
		}
		if pfds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		paths, oversize, err := c.fifo.Poll()
		if err != nil {
			c.log.Entry(rlog.WarnLevel, "control fifo read failed").Error(err).Log()
			continue
		}
		if oversize {
			c.log.Entry(rlog.WarnLevel, "control fifo: path ignored").
				Error(errs.New(errs.CodeLimitPath, "path exceeds sockaddr limit")).Log()
		}
		for _, p := range paths {
			if c.Metrics != nil {
				c.Metrics.Reconnects.Inc()
			}
			if aerr := Attempt(p, c.tok, c.w); aerr != nil {
				c.log.Entry(rlog.WarnLevel, "reconnection attempt failed").
					Field("endpoint", p).Error(aerr).Log()
				continue
			}
			c.log.Entry(rlog.InfoLevel, "reconnection attempt delivered").
				Field("endpoint", p).Log()
		}
	}
}
