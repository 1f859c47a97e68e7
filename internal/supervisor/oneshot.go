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

// Package supervisor implements spec.md §4.F's two operational modes
// (oneshot and multi/display-socket) plus the shell-fallback and
// environment-shaping rules of §4.F/§6. Grounded on
// original_source/src/server.c's main_loop and run_server, adapted to the
// goroutine-per-connection worker model documented in internal/worker.
package supervisor

import (
	"context"
	"os"
	"os/exec"

	"github.com/nabbar/wlproxy/internal/chanio"
	"github.com/nabbar/wlproxy/internal/closer"
	"github.com/nabbar/wlproxy/internal/errs"
	"github.com/nabbar/wlproxy/internal/reconnect"
	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/token"
	"github.com/nabbar/wlproxy/internal/worker"
)

// OneshotConfig configures a single-application session (spec.md §4.F
// "Oneshot"): the app is launched with a pre-created socket pair, one end
// handed to it via environment, the other kept as the worker's app fd.
type OneshotConfig struct {
	// RemoteEndpoint is the channel's Unix-domain socket path on this
	// machine (the far end of the external byte-oriented transport).
	RemoteEndpoint string
	// ControlFIFO, if non-empty, enables reconnection (spec.md §4.G).
	ControlFIFO string
	// Reconnectable is carried into the token's RECONNECTABLE bit.
	Reconnectable bool
	// Argv is the application command line. If empty, the shell fallback
	// of spec.md §4.F/S5 is used.
	Argv []string
	// LoginShell requests argv[0] = "-"+basename for the shell fallback.
	LoginShell bool
	// Shell is the raw $SHELL value to resolve the fallback against.
	Shell string
}

// RunOneshot runs one full oneshot session to completion: open the channel,
// write the fresh token, fork the application (or the shell fallback),
// start the worker loop and, if configured, the reconnection controller,
// then wait for the application to exit. The returned exit code is the
// application's own exit status unchanged, per spec.md §6 ("the app is the
// session root").
func RunOneshot(ctx context.Context, cfg OneshotConfig, log *rlog.Logger) (int, error) {
	appEnd, proxyEnd, err := chanio.SocketPair()
	if err != nil {
		return exitFailure, errs.Wrap(errs.CodeSetupSocketPair, "supervisor: oneshot socketpair", err)
	}

	chFD, err := chanio.Connect(cfg.RemoteEndpoint)
	if err != nil {
		_ = os.NewFile(uintptr(appEnd), "app").Close()
		_ = os.NewFile(uintptr(proxyEnd), "proxy").Close()
		return exitFailure, errs.Wrap(errs.CodeSetupConnect, "supervisor: oneshot connect channel", err)
	}

	closeAll := func(fds ...int) {
		for _, fd := range fds {
			_ = os.NewFile(uintptr(fd), "").Close()
		}
	}

	tok := token.New(cfg.Reconnectable)
	if err = chanio.WriteAll(chFD, tok.Marshal()); err != nil {
		closeAll(appEnd, proxyEnd, chFD)
		return exitFailure, errs.Wrap(errs.CodeSetupConnect, "supervisor: oneshot write token", err)
	}

	cmd, err := buildAppCommand(cfg, appEnd)
	if err != nil {
		closeAll(appEnd, proxyEnd, chFD)
		return exitFailure, err
	}
	if err = cmd.Start(); err != nil {
		_ = cmd.ExtraFiles[0].Close()
		closeAll(proxyEnd, chFD)
		return exitFailure, errs.Wrap(errs.CodeSetupFork, "supervisor: oneshot start app", err)
	}
	// The app's end of the pair was duplicated into the child by
	// ExtraFiles; the parent's copy (and its reference via appEnd, now
	// owned by cmd.ExtraFiles[0]) must be closed so EOF propagates when
	// the app exits without the proxy itself holding the fd open.
	_ = cmd.ExtraFiles[0].Close()

	w := worker.New(0, tok, proxyEnd, chFD, log)
	sess := closer.NewSet()
	sess.Add(w)

	var ctrl *reconnect.Controller
	var fifo *reconnect.FIFOReader
	if cfg.ControlFIFO != "" {
		fifo, err = reconnect.NewFIFOReader(cfg.ControlFIFO)
		if err != nil {
			log.Entry(rlog.WarnLevel, "control fifo unavailable, reconnection disabled").Error(err).Log()
		} else {
			ctrl = reconnect.NewController(fifo, w, log)
			go func() { _ = ctrl.Run(ctx) }()
		}
	}

	workerDone := make(chan error, 1)
	go func() { workerDone <- w.Run(ctx) }()

	waitErr := cmd.Wait()
	<-workerDone
	_ = sess.Close()
	if fifo != nil {
		_ = fifo.Close(true)
	}

	return exitCodeFromWait(waitErr), nil
}

func buildAppCommand(cfg OneshotConfig, appEnd int) (*exec.Cmd, error) {
	appFile := os.NewFile(uintptr(appEnd), "app")

	var path string
	var argv []string
	if len(cfg.Argv) > 0 {
		path = cfg.Argv[0]
		argv = cfg.Argv
	} else {
		shellPath, argv0 := ShellCommand(cfg.Shell, cfg.LoginShell)
		path = shellPath
		argv = []string{argv0}
	}

	cmd := exec.Command(path)
	cmd.Args = argv
	cmd.ExtraFiles = []*os.File{appFile}
	// ExtraFiles start at fd 3 in the child (0,1,2 are stdio), so a single
	// ExtraFiles entry always lands at fd 3.
	cmd.Env = OneshotEnv(os.Environ(), 3)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

const exitFailure = 1

func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return exitFailure
}
