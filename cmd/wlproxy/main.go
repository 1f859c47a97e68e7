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

// Command wlproxy is the session-supervisor CLI: a "server" subcommand
// covering both of spec.md §4.F's operational modes, and a "client" stub
// standing in for the out-of-scope client-side mirror (spec.md §1).
// Grounded on the teacher's cobra/ + config/components/log wiring, trimmed
// to a direct spf13/cobra + spf13/viper tree since this module has no need
// for the teacher's bubbletea interactive-prompt UI or multi-component
// config registry (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/wlproxy/internal/config"
	"github.com/nabbar/wlproxy/internal/metrics"
	"github.com/nabbar/wlproxy/internal/rlog"
	"github.com/nabbar/wlproxy/internal/supervisor"
	"github.com/nabbar/wlproxy/internal/ulimit"
)

var (
	v           = viper.New()
	cfgFile     string
	dumpXfer    string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "wlproxy",
		Short: "Transparent forwarding proxy for a local graphics-display protocol",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (overrides defaults; overridden by env and flags)")

	serverCmd := &cobra.Command{
		Use:   "server [oneshot|multi] [-- app args...]",
		Short: "run the session supervisor in oneshot or multi (display-socket) mode",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runServer,
	}
	if err := config.RegisterFlags(serverCmd, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	serverCmd.Flags().StringVar(&dumpXfer, "dump-transfer", "", "debug: run one collection pass over a built-in sample payload, write its combine_transfer_blocks output to this path, and exit")
	serverCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "client-side mirror (out of scope: interface only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("wlproxy: client-side supervisor mirror is an external collaborator, not implemented here")
		},
	}

	root.AddCommand(serverCmd, clientCmd)

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			_ = v.ReadInConfig()
		}
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	mode := args[0]
	appArgv := args[1:]

	cfg := config.Load(v, mode, appArgv)
	log := rlog.New(rlog.GetLevelString(cfg.LogLevel))

	if _, _, err := ulimit.Raise(1024); err != nil {
		log.Entry(rlog.WarnLevel, "failed to raise RLIMIT_NOFILE, continuing with current limit").Error(err).Log()
	}

	var m9s *metrics.Metrics
	var metricsReg *prometheus.Registry
	if metricsAddr != "" || dumpXfer != "" {
		metricsReg = prometheus.NewRegistry()
		m9s = metrics.New(metricsReg)
	}

	if dumpXfer != "" {
		sample := []byte("wlproxy dump-transfer sample payload\n")
		if err := dumpTransfer(cfg, sample, dumpXfer, m9s); err != nil {
			return err
		}
		log.Entry(rlog.InfoLevel, "wrote combined transfer blocks").Field("path", dumpXfer).Log()
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if metricsAddr != "" {
		reg := metricsReg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Entry(rlog.WarnLevel, "metrics server stopped").Error(err).Log()
			}
		}()
		go func() { <-ctx.Done(); _ = srv.Close() }()
	}

	switch mode {
	case "oneshot":
		code, err := supervisor.RunOneshot(ctx, supervisor.OneshotConfig{
			RemoteEndpoint: cfg.RemoteEndpoint,
			ControlFIFO:    cfg.ControlFIFO,
			Reconnectable:  cfg.Reconnectable,
			Argv:           appArgv,
			LoginShell:     cfg.LoginShell,
			Shell:          os.Getenv("SHELL"),
		}, log)
		if err != nil {
			return err
		}
		os.Exit(code)
		return nil

	case "multi":
		if cfg.DisplaySocket == "" {
			return fmt.Errorf("wlproxy: --display-socket is required in multi mode")
		}
		m, err := supervisor.NewMulti(supervisor.MultiConfig{
			DisplayPath:    cfg.DisplaySocket,
			RemoteEndpoint: cfg.RemoteEndpoint,
			ControlFIFO:    cfg.ControlFIFO,
			Reconnectable:  cfg.Reconnectable,
			Argv:           appArgv,
			LoginShell:     cfg.LoginShell,
			Shell:          os.Getenv("SHELL"),
		}, log)
		if err != nil {
			return err
		}
		m.Metrics = m9s
		code, err := m.Run(ctx)
		if err != nil {
			return err
		}
		os.Exit(code)
		return nil

	default:
		return fmt.Errorf("wlproxy: unknown mode %q (want oneshot or multi)", mode)
	}
}
