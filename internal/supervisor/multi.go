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

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/chanio"
	"github.com/nabbar/wlproxy/internal/closer"
	"github.com/nabbar/wlproxy/internal/errs"
	"github.com/nabbar/wlproxy/internal/metrics"
	"github.com/nabbar/wlproxy/internal/reconnect"
	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/token"
	"github.com/nabbar/wlproxy/internal/worker"
)

// displayBacklog is spec.md §4.F's fixed listen backlog.
const displayBacklog = 128

// pollTimeoutMS bounds how long the supervisor's poll loop blocks before
// re-checking the shutdown flag and sweeping the connection table, in lieu
// of the source's indefinite-timeout poll() plus SIGCHLD-driven wakeups
// (spec.md §5: "the supervisor blocks only in poll ... and in accept").
const pollTimeoutMS = 1000

// MultiConfig configures the display-socket supervisor (spec.md §4.F
// "Multi (display-socket)").
type MultiConfig struct {
	// DisplayPath is the Unix-domain socket path to bind and listen on.
	DisplayPath string
	// DisplayName is the WAYLAND_DISPLAY value presented to the launched
	// application (absolute path, or a basename the app resolves under its
	// own XDG_RUNTIME_DIR, per spec.md §6). Defaults to DisplayPath.
	DisplayName string
	// RemoteEndpoint is the channel endpoint opened for each accepted
	// application connection.
	RemoteEndpoint string
	// ControlFIFO, if non-empty, enables live reconnection across every
	// connection in the table (spec.md §4.F's fold-in of §4.G).
	ControlFIFO   string
	Reconnectable bool
	// Argv is the application command line launched against the display
	// socket. If empty, the shell fallback of spec.md §4.F/S5 is used.
	Argv       []string
	LoginShell bool
	// Shell is the raw $SHELL value to resolve the fallback against.
	Shell string
}

// Multi is the display-socket session supervisor.
type Multi struct {
	cfg   MultiConfig
	log   *rlog.Logger
	table *Table

	listenFD  int
	unlinkDsp bool
	closers   *closer.Set

	fifo      *reconnect.FIFOReader
	unlinkFfo bool

	nextWorkerID atomic.Int32
	shutdown     atomic.Bool

	// Metrics is optional; when set, reconnection attempts are counted on
	// it (spec.md's domain-stack Prometheus wiring, SPEC_FULL.md §3).
	Metrics *metrics.Metrics
}

// NewMulti binds the display socket (and, if configured, the control
// FIFO) and returns a ready-to-run supervisor.
func NewMulti(cfg MultiConfig, log *rlog.Logger) (*Multi, error) {
	fd, err := chanio.Listen(cfg.DisplayPath, displayBacklog)
	if err != nil {
		return nil, errs.Wrap(errs.CodeSetupBind, "supervisor: bind display socket", err)
	}

	m := &Multi{
		cfg:       cfg,
		log:       log,
		table:     NewTable(),
		listenFD:  fd,
		unlinkDsp: true,
		closers:   closer.NewSet(),
	}
	m.closers.Add(chanio.NewFD(fd))

	if cfg.ControlFIFO != "" {
		m.fifo, err = reconnect.NewFIFOReader(cfg.ControlFIFO)
		if err != nil {
			_ = m.closers.Close()
			_ = os.Remove(cfg.DisplayPath)
			return nil, errs.Wrap(errs.CodeSetupMkfifo, "supervisor: open control fifo", err)
		}
		m.unlinkFfo = true
	}

	return m, nil
}

// Run launches the application against the display socket, then accepts
// connections until the app exits or ctx is cancelled, spawning one worker
// per connection and sweeping exited workers from the table on every poll
// iteration (spec.md §4.F). The returned code is the application's exit
// status unchanged (spec.md §6: the app is the session root); a shutdown
// via ctx returns 0 without waiting on the app.
func (m *Multi) Run(ctx context.Context) (int, error) {
	defer m.cleanup()

	cmd, err := m.startApp()
	if err != nil {
		return exitFailure, err
	}
	appDone := make(chan error, 1)
	go func() { appDone <- cmd.Wait() }()

	wakeR, wakeW, err := os.Pipe()
	if err != nil {
		return exitFailure, fmt.Errorf("supervisor: wake pipe: %w", err)
	}
	defer wakeR.Close()
	defer wakeW.Close()
	go func() {
		<-ctx.Done()
		m.shutdown.Store(true)
		_, _ = wakeW.Write([]byte{0})
	}()

	pfds := []unix.PollFd{
		{Fd: int32(m.listenFD), Events: unix.POLLIN},
		{Fd: int32(wakeR.Fd()), Events: unix.POLLIN},
	}
	if m.fifo != nil {
		pfds = append(pfds, unix.PollFd{Fd: int32(m.fifo.FD()), Events: unix.POLLIN})
	}

	for !m.shutdown.Load() {
		select {
		case werr := <-appDone:
			return exitCodeFromWait(werr), nil
		default:
		}

		n, err := unix.Poll(pfds, pollTimeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return exitFailure, fmt.Errorf("supervisor: poll: %w", err)
		}

		if n > 0 && pfds[0].Revents&unix.POLLIN != 0 {
			m.acceptOne()
		}
		if m.fifo != nil && n > 0 && len(pfds) > 2 && pfds[2].Revents&unix.POLLIN != 0 {
			m.pollControlFIFO()
		}

		for _, r := range m.table.Sweep() {
			m.logReaped(r)
		}
	}

	return 0, nil
}

// startApp launches the application (or the shell fallback) with the
// display-mode environment of spec.md §6: WAYLAND_SOCKET unset,
// WAYLAND_DISPLAY pointing at the display socket this supervisor serves.
func (m *Multi) startApp() (*exec.Cmd, error) {
	var path string
	var argv []string
	if len(m.cfg.Argv) > 0 {
		path, argv = m.cfg.Argv[0], m.cfg.Argv
	} else {
		shellPath, argv0 := ShellCommand(m.cfg.Shell, m.cfg.LoginShell)
		path, argv = shellPath, []string{argv0}
	}

	display := m.cfg.DisplayName
	if display == "" {
		display = m.cfg.DisplayPath
	}

	cmd := exec.Command(path)
	cmd.Args = argv
	cmd.Env = DisplayEnv(os.Environ(), display)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.CodeSetupFork, "supervisor: start app", err)
	}
	return cmd, nil
}

func (m *Multi) acceptOne() {
	appFD, err := chanio.Accept(m.listenFD)
	if err != nil {
		m.log.Entry(rlog.WarnLevel, "accept failed").Error(err).Log()
		return
	}

	chFD, err := chanio.Connect(m.cfg.RemoteEndpoint)
	if err != nil {
		m.log.Entry(rlog.ErrorLevel, "connect to remote endpoint failed, dropping connection").Error(err).Log()
		_ = unix.Close(appFD)
		return
	}

	tok := token.New(m.cfg.Reconnectable)
	if err = chanio.WriteAll(chFD, tok.Marshal()); err != nil {
		m.log.Entry(rlog.ErrorLevel, "write token failed, dropping connection").Error(err).Log()
		_ = unix.Close(appFD)
		_ = unix.Close(chFD)
		return
	}

	id := int(m.nextWorkerID.Add(1))
	w := worker.New(id, tok, appFD, chFD, m.log)
	m.table.Add(&Record{Worker: w})

	go func() {
		_ = w.Run(context.Background())
		_ = w.Close()
	}()
}

func (m *Multi) pollControlFIFO() {
	paths, oversize, err := m.fifo.Poll()
	if err != nil {
		m.log.Entry(rlog.WarnLevel, "control fifo read failed").Error(err).Log()
		return
	}
	if oversize {
		m.log.Entry(rlog.WarnLevel, "control fifo: path ignored").
			Error(errs.New(errs.CodeLimitPath, "path exceeds sockaddr limit")).Log()
	}
	for _, p := range paths {
		m.migrateAll(p)
	}
}

// migrateAll folds the reconnection controller's role into the supervisor
// for multi mode (spec.md §4.F): for each live connection record, open a
// new channel, write that record's token with UPDATE set, and hand the fd
// over. Partial failure is tolerated by design (spec.md §9's open
// question, resolved here as best-effort): already-migrated connections
// keep the new endpoint, not-yet-migrated ones remain on the old one.
func (m *Multi) migrateAll(endpoint string) {
	for _, r := range m.table.Snapshot() {
		if m.Metrics != nil {
			m.Metrics.Reconnects.Inc()
		}
		if err := reconnect.Attempt(endpoint, r.Worker.Token(), r.Worker); err != nil {
			m.log.Entry(rlog.WarnLevel, "migration attempt failed for one connection").
				Field("worker", r.Worker.ID()).Field("session", r.Worker.Session()).
				Field("endpoint", endpoint).Error(err).Log()
			continue
		}
	}
}

func (m *Multi) logReaped(r Reaped) {
	lvl := rlog.InfoLevel
	if r.Record.Worker.Err() != nil {
		lvl = rlog.WarnLevel
	}
	e := m.log.Entry(lvl, "connection worker exited").
		Field("worker", r.Record.Worker.ID()).Field("session", r.Record.Worker.Session())
	if r.Sole {
		e = e.Field("sole_child", true)
	}
	if err := r.Record.Worker.Err(); err != nil {
		e = e.Error(err)
	}
	e.Log()
}

func (m *Multi) cleanup() {
	_ = m.closers.Close()
	if m.unlinkDsp {
		_ = os.Remove(m.cfg.DisplayPath)
	}
	if m.fifo != nil {
		_ = m.fifo.Close(m.unlinkFfo)
	}
}
