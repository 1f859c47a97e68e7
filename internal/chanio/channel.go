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

// Package chanio implements the two primitives spec.md §4.B names: connect
// to a Unix-domain channel endpoint, and send/receive a single fd over a
// stream socket pair via ancillary data. Grounded on
// original_source/src/server.c's connect_to_socket/send_one_fd call sites
// (util.c itself was filtered out of the retrieval pack; the syscalls below
// are the direct Go equivalent of what those call sites expect) and on the
// teacher's raw-syscall style in ioutils/fileDescriptor.
package chanio

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Connect opens a stream connection to a Unix-domain socket at path. The
// channel itself is an external collaborator (spec.md §1 out-of-scope); this
// only establishes the byte-stream transport underneath it.
func Connect(path string) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("chanio: socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err = unix.Connect(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chanio: connect %s: %w", path, err)
	}
	return fd, nil
}

// SocketPair creates a connected pair of Unix stream sockets, used for the
// supervisor<->worker link fd and for the oneshot app<->channel handoff.
func SocketPair() (a int, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, fmt.Errorf("chanio: socketpair: %w", err)
	}
	return fds[0], fds[1], nil
}

// SendFD sends one fd over sock as ancillary (SCM_RIGHTS) data, with a
// single placeholder byte of in-band payload (some platforms reject a
// zero-length sendmsg carrying only control data).
func SendFD(sock int, fd int) error {
	rights := unix.UnixRights(fd)
	if err := unix.Sendmsg(sock, []byte{0}, rights, nil, 0); err != nil {
		return fmt.Errorf("chanio: sendmsg fd: %w", err)
	}
	return nil
}

// RecvFD receives one fd sent by SendFD over sock.
func RecvFD(sock int) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, 0)
	if err != nil {
		return -1, fmt.Errorf("chanio: recvmsg fd: %w", err)
	}
	if n == 0 && oobn == 0 {
		return -1, fmt.Errorf("chanio: recvmsg fd: peer closed")
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("chanio: parse control message: %w", err)
	}
	if len(msgs) == 0 {
		return -1, fmt.Errorf("chanio: recvmsg fd: no control message")
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return -1, fmt.Errorf("chanio: parse unix rights: %w", err)
	}
	if len(fds) == 0 {
		return -1, fmt.Errorf("chanio: recvmsg fd: no fd in control message")
	}
	return fds[0], nil
}

// WriteAll writes buf to fd in full, retrying on short writes and EINTR.
func WriteAll(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("chanio: write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("chanio: write: no progress")
		}
		buf = buf[n:]
	}
	return nil
}

// ReadFull reads exactly len(buf) bytes from fd, retrying on EINTR.
func ReadFull(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("chanio: read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("chanio: read: unexpected EOF")
		}
		buf = buf[n:]
	}
	return nil
}

// Listen binds and listens on a Unix-domain stream socket at path with the
// given backlog, used by the multi-mode supervisor's display-socket
// listener (spec.md §4.F: "a listening socket is bound at the display path
// with a backlog of 128").
func Listen(path string, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("chanio: socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err = unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chanio: bind %s: %w", path, err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("chanio: listen %s: %w", path, err)
	}
	return fd, nil
}

// Accept accepts one connection on a listening socket created by Listen.
func Accept(fd int) (int, error) {
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, fmt.Errorf("chanio: accept: %w", err)
	}
	return nfd, nil
}

// FD wraps a raw file descriptor as an io.Closer guarding against double
// close, per spec.md §5's "single checked-close wrapper" requirement: a
// second Close is a detected programming error rather than a silent
// EBADF-ignoring no-op.
type FD struct {
	fd     int
	closed atomic.Bool
}

func NewFD(fd int) *FD {
	return &FD{fd: fd}
}

func (f *FD) Int() int { return f.fd }

func (f *FD) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("chanio: fd %d closed twice", f.fd)
	}
	return unix.Close(f.fd)
}
