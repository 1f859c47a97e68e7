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

package rlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide entry point used by every component: the
// session supervisor, the reconnection controller, and each per-connection
// worker. One Logger is shared per process; per-connection context (token
// key prefix, pid, remote id) rides along as Fields on each Entry instead of
// a separate logger instance, matching the teacher's single-root-logger
// convention.
type Logger struct {
	base *logrus.Logger
}

// New builds a Logger writing to stderr at the given minimum level. A
// NilLevel silences the logger completely by routing to io.Discard.
func New(lvl Level) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl == NilLevel {
		l.SetOutput(discard{})
	} else {
		l.SetLevel(lvl.logrus())
	}
	return &Logger{base: l}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// SetLevel adjusts the minimum level at runtime (e.g. after parsing flags).
func (g *Logger) SetLevel(lvl Level) {
	if lvl == NilLevel {
		g.base.SetOutput(discard{})
		return
	}
	g.base.SetLevel(lvl.logrus())
}

// Entry starts a new chainable log entry with an initial message.
func (g *Logger) Entry(lvl Level, msg string) *Entry {
	return &Entry{
		logger: g.base,
		level:  lvl,
		msg:    msg,
		fields: logrus.Fields{},
	}
}
