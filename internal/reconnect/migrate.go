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
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nabbar/wlproxy/internal/chanio"
	"github.com/nabbar/wlproxy/internal/errs"
	"github.com/nabbar/wlproxy/internal/token"
)

// Target is anything that can accept a replacement channel fd: a worker in
// oneshot mode, or a connection record's worker in multi mode. Both the
// standalone Controller and the multi-mode supervisor's fold-in (spec.md
// §4.F) share this one attempt sequence.
type Target interface {
	Reconnect(newChanFD int) bool
}

// Attempt performs spec.md §4.G's steps 4-5 for one endpoint/target pair:
// connect to the new endpoint, write an UPDATE-flagged copy of tok, and
// hand the fd to target. Any failure is non-fatal: it is returned for the
// caller to log, and the fd (if opened) is always closed before returning
// on a failure path.
func Attempt(endpoint string, tok *token.Token, target Target) error {
	fd, err := chanio.Connect(endpoint)
	if err != nil {
		return errs.Wrap(errs.CodeReconnectConnect, fmt.Sprintf("reconnect: connect %s", endpoint), err)
	}

	upd := tok.WithUpdate()
	if err = chanio.WriteAll(fd, upd.Marshal()); err != nil {
		_ = unix.Close(fd)
		return errs.Wrap(errs.CodeReconnectWrite, fmt.Sprintf("reconnect: write token to %s", endpoint), err)
	}

	if !target.Reconnect(fd) {
		_ = unix.Close(fd)
		return errs.New(errs.CodeReconnectSendFD, fmt.Sprintf("reconnect: target busy, fd for %s dropped (will retry next trigger)", endpoint))
	}
	return nil
}
