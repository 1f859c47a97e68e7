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
	"fmt"
	"strconv"
	"strings"
)

// filterEnv drops every entry of env whose key is in drop.
func filterEnv(env []string, drop ...string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		k := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k = kv[:i]
		}
		keep := true
		for _, d := range drop {
			if k == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, kv)
		}
	}
	return out
}

// OneshotEnv builds the app's environment per spec.md §6: unset
// WAYLAND_DISPLAY, set WAYLAND_SOCKET to the stringified fd number the app
// will find its end of the socket pair at.
func OneshotEnv(base []string, fd int) []string {
	env := filterEnv(base, "WAYLAND_DISPLAY")
	return append(env, fmt.Sprintf("WAYLAND_SOCKET=%s", strconv.Itoa(fd)))
}

// DisplayEnv builds the app's environment for multi (display-socket) mode
// per spec.md §6: unset WAYLAND_SOCKET, set WAYLAND_DISPLAY to the
// configured value (absolute path or a basename the app resolves under its
// own $XDG_RUNTIME_DIR).
func DisplayEnv(base []string, display string) []string {
	env := filterEnv(base, "WAYLAND_SOCKET")
	return append(env, fmt.Sprintf("WAYLAND_DISPLAY=%s", display))
}
