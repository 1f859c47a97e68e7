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

// Package pool implements the bounded thread pool spec.md §4.D describes: a
// FIFO work queue of compression/diff tasks, a fixed worker set, and
// main-thread participation that opportunistically steals and runs tasks
// inline while waiting for the queue to drain. The C original wakes its
// main thread via a self-pipe readable end integrated into the same poll()
// loop as the channel and application fds; in Go, a buffered notification
// channel selected on alongside the other event sources is the idiomatic
// equivalent (see DESIGN.md) — the queue itself is a plain mutex+slice, the
// direct translation of queue_start/queue_end/in_progress plus a
// sync.Cond in place of the condition variable.
package pool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Task is one unit of pool work: a compression/diff job the transfer engine
// enqueues, or the stop sentinel used at teardown.
type Task struct {
	Run  func()
	stop bool
}

// StopTask is the termination sentinel: a worker popping it exits its loop
// without running anything, matching spec.md §4.D's teardown signal.
var StopTask = &Task{stop: true}

// Pool is a fixed-size worker set plus a FIFO queue and main-thread
// participation, per spec.md §4.D.
type Pool struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*Task
	inProgress int
	notify     chan struct{}
	wg         sync.WaitGroup
	workers    int

	// QueueDepth, if set, is kept in sync with len(queue)+inProgress on
	// every transition (spec.md §4.D's queue_start/queue_end/in_progress,
	// exported for the domain-stack Prometheus wiring named in
	// SPEC_FULL.md §3). Left nil, updates are skipped.
	QueueDepth prometheus.Gauge
}

// New creates and starts a pool with the given fixed worker count.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		workers: workers,
		notify:  make(chan struct{}, 1),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	return p
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			p.cond.Wait()
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		if t.stop {
			p.mu.Unlock()
			return
		}
		p.inProgress++
		p.mu.Unlock()

		t.Run()

		p.mu.Lock()
		p.inProgress--
		p.mu.Unlock()
		p.wake()
		p.reportDepth()
	}
}

func (p *Pool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// reportDepth publishes len(queue)+inProgress to QueueDepth, if set. Safe
// to call without the mutex held: a brief staleness is acceptable for a
// diagnostic gauge.
func (p *Pool) reportDepth() {
	if p.QueueDepth == nil {
		return
	}
	p.mu.Lock()
	depth := len(p.queue) + p.inProgress
	p.mu.Unlock()
	p.QueueDepth.Set(float64(depth))
}

// Submit pushes a task onto the queue with the mutex held, per spec.md
// §4.D, and wakes one worker.
func (p *Pool) Submit(run func()) {
	p.mu.Lock()
	p.queue = append(p.queue, &Task{Run: run})
	p.mu.Unlock()
	p.cond.Signal()
	p.reportDepth()
}

// idle reports whether the queue is drained and no task is in flight.
func (p *Pool) idle() bool {
	return len(p.queue) == 0 && p.inProgress == 0
}

// WaitIdle is wait_for_thread_pool: it drains the notification channel,
// opportunistically steals one non-stop task and runs it inline on the
// calling goroutine, and loops until queue_start == queue_end &&
// in_progress == 0.
func (p *Pool) WaitIdle() {
	for {
		p.mu.Lock()
		if p.idle() {
			p.mu.Unlock()
			return
		}

		var t *Task
		if len(p.queue) > 0 && !p.queue[0].stop {
			t = p.queue[0]
			p.queue = p.queue[1:]
			p.inProgress++
		}
		p.mu.Unlock()

		if t != nil {
			t.Run()
			p.mu.Lock()
			p.inProgress--
			p.mu.Unlock()
			p.wake()
			p.reportDepth()
			continue
		}

		select {
		case <-p.notify:
		default:
			<-p.notify
		}
	}
}

// Stop pushes one stop sentinel per worker and waits for every worker
// goroutine to exit. The pool must be idle (via WaitIdle) before Stop is
// called, matching spec.md §4.D's "the pool is only destroyed when the
// queue is drained."
func (p *Pool) Stop() {
	p.mu.Lock()
	for i := 0; i < p.workers; i++ {
		p.queue = append(p.queue, StopTask)
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
