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

// Package config binds the session supervisor's settings to a cobra command
// tree and a layered viper source (flags > env WLPROXY_* > file), the way
// the teacher's config/components/log binds logger options: PersistentFlags
// registered on the command, each one bound to viper under the same key, so
// the effective value is resolved by viper's own precedence rules rather
// than hand-rolled flag/env merging.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the resolved, process-wide configuration for one supervisor
// invocation (oneshot or multi), plus the transfer engine's codec choice
// and the worker pool size spec.md §4.D describes.
type Config struct {
	// Mode is "oneshot" or "multi".
	Mode string

	DisplaySocket string
	ControlFIFO   string
	RemoteEndpoint string
	Reconnectable  bool
	LoginShell     bool
	AppArgv        []string

	Codec          string // "none", "lz4", "zstd"
	CodecLevel     int
	PoolWorkers    int

	LogLevel string
}

// RegisterFlags registers every persistent flag this module reads and
// binds each one into v under the identical key, matching the teacher's
// one-flag-one-bind-call convention in config/components/log.
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.PersistentFlags()
	f.String("display-socket", "", "path (or XDG_RUNTIME_DIR-relative basename) of the display socket to listen on (multi mode)")
	f.String("control-fifo", "", "path of the control FIFO accepting reconnection endpoint paths")
	f.String("remote-endpoint", "", "channel endpoint this proxy instance connects to")
	f.Bool("reconnectable", true, "mark minted tokens RECONNECTABLE")
	f.Bool("login-shell", false, "exec the shell fallback as a login shell")
	f.String("codec", "lz4", "bulk-transfer codec: none, lz4 or zstd")
	f.Int("codec-level", 1, "codec compression level")
	f.Int("pool-workers", 4, "thread-pool worker count")
	f.String("log-level", "info", "minimum log level")

	for _, key := range []string{
		"display-socket", "control-fifo", "remote-endpoint", "reconnectable",
		"login-shell", "codec", "codec-level", "pool-workers", "log-level",
	} {
		if err := v.BindPFlag(key, f.Lookup(key)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", key, err)
		}
	}

	v.SetEnvPrefix("WLPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load resolves a Config from v, after flags have been parsed and any
// config file has been read into it.
func Load(v *viper.Viper, mode string, argv []string) *Config {
	return &Config{
		Mode:           mode,
		DisplaySocket:  v.GetString("display-socket"),
		ControlFIFO:    v.GetString("control-fifo"),
		RemoteEndpoint: v.GetString("remote-endpoint"),
		Reconnectable:  v.GetBool("reconnectable"),
		LoginShell:     v.GetBool("login-shell"),
		AppArgv:        argv,
		Codec:          v.GetString("codec"),
		CodecLevel:     v.GetInt("codec-level"),
		PoolWorkers:    v.GetInt("pool-workers"),
		LogLevel:       v.GetString("log-level"),
	}
}
