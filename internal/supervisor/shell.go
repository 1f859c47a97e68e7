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

import "path/filepath"

// maxShellLen is spec.md §4.F's cutoff: "$SHELL values with length >= 254
// bytes cause fallback to the default."
const maxShellLen = 254

// defaultShell is used whenever $SHELL is unset or too long.
const defaultShell = "/bin/sh"

// ShellCommand resolves the app-less fallback exec target per spec.md
// §4.F/§8 S5: shellEnv is the raw $SHELL value (possibly empty); login
// selects whether argv[0] is the basename prefixed with "-" (a login
// shell) or the shell's full path.
func ShellCommand(shellEnv string, login bool) (path string, argv0 string) {
	path = shellEnv
	if path == "" || len(path) >= maxShellLen {
		path = defaultShell
	}
	if login {
		return path, "-" + filepath.Base(path)
	}
	return path, path
}
