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

// Package errs provides the typed error codes used across the supervisor
// and transfer engine, grounded on the teacher's errors/code.go CodeError
// pattern (a uint16 namespace modeled after HTTP status codes) but trimmed
// to a plain error type implementing Unwrap, since this module has no need
// for the teacher's trace/pool/mode machinery.
package errs

import "fmt"

// Code is a numeric error-code namespace, grouped by the five error kinds
// spec.md §7 names.
type Code uint16

const (
	// Unknown is the fallback for an error with no assigned code.
	Unknown Code = 0

	// Setup errors: bind/connect/socketpair/fork failures. Fatal to the
	// session branch that raised them.
	CodeSetupBind       Code = 500
	CodeSetupFork       Code = 501
	CodeSetupSocketPair Code = 502
	CodeSetupConnect    Code = 503
	CodeSetupMkfifo     Code = 504

	// Transient channel errors during reconnection: logged, attempt
	// skipped, session stays on its current channel.
	CodeReconnectConnect Code = 510
	CodeReconnectWrite   Code = 511
	CodeReconnectSendFD  Code = 512

	// Per-task errors: map/read/write during an update task. The shadow
	// stays dirty for retry on the next collection pass.
	CodeTaskMap   Code = 520
	CodeTaskRead  Code = 521
	CodeTaskWrite Code = 522

	// Peer desync: unknown xid with non-whole-object type, oversize frame,
	// bad alignment. Session-fatal.
	CodeDesyncUnknownXID Code = 530
	CodeDesyncOversize   Code = 531
	CodeDesyncAlignment  Code = 532

	// Length-limit violations: socket paths, env values. Logged, input
	// ignored, fallback used where one is defined.
	CodeLimitPath Code = 540
	CodeLimitEnv  Code = 541
)

// Error is a Code-carrying error that wraps an optional cause.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether an error kind is session-branch or worker fatal per
// spec.md §7's propagation policy (setup errors and peer desync are fatal;
// transient/per-task/length-limit are recoverable).
func (e *Error) Fatal() bool {
	switch {
	case e.Code >= 500 && e.Code < 510:
		return true
	case e.Code >= 530 && e.Code < 540:
		return true
	default:
		return false
	}
}
