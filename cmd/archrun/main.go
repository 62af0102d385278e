// Command archrun starts one archetype process from a deployment
// config, dispatching to a named built-in program (spec.md §6.4
// "Deployment surface").
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpcal-lang/distsys/archetype"
	"github.com/mpcal-lang/distsys/config"
	"github.com/mpcal-lang/distsys/examples/kvstore"
	"github.com/mpcal-lang/distsys/examples/proxy"
	"github.com/mpcal-lang/distsys/monitor"
	"github.com/mpcal-lang/distsys/resource"
	"github.com/mpcal-lang/distsys/resources/failuredetector"
	"github.com/mpcal-lang/distsys/resources/mailbox"
	"github.com/mpcal-lang/distsys/tlaval"
)

func main() {
	root := &cobra.Command{Use: "archrun"}
	root.AddCommand(runCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath, env, program, metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a built-in archetype program from a deployment config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, env)
			if err != nil {
				return err
			}
			logger := logrus.StandardLogger()
			if cfg.Logging.Level != "" {
				if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
					logger.SetLevel(lvl)
				}
			}

			table := cfg.PeerAddrTable()
			table[cfg.Self] = cfg.Mailbox.ListenAddr

			addrFn := func(index tlaval.Value) (mailbox.Kind, string, error) {
				name := index.String()
				if name == cfg.Self {
					return mailbox.Local, table[name], nil
				}
				return mailbox.Remote, table[name], nil
			}

			reg := prometheus.NewRegistry()
			mailboxMetrics := mailbox.NewMetrics(reg)

			makers := map[string]resource.Maker{
				"net": mailbox.Maker(cfg.SelfValue(), addrFn, mailbox.Options{Logger: logger, Metrics: mailboxMetrics}),
			}
			constants := make(map[string]tlaval.Value, len(cfg.Constants))
			for k, v := range cfg.Constants {
				constants[k] = toValue(v)
			}

			var monClient *monitor.Client
			if cfg.Monitor.Addr != "" {
				monClient = monitor.NewClient(cfg.Monitor.Addr, logger)
				pull := time.Duration(cfg.Monitor.PullIntervalMS) * time.Millisecond
				timeout := time.Duration(cfg.Monitor.TimeoutMS) * time.Millisecond
				if pull <= 0 {
					pull = 200 * time.Millisecond
				}
				if timeout <= 0 {
					timeout = 2 * time.Second
				}
				makers["fd"] = failuredetector.Maker(monClient, pull, timeout, logger, failuredetector.NewMetrics(reg))
			}

			var body archetype.Body
			switch program {
			case "proxy-server":
				body = &proxy.Server{Self: cfg.SelfValue()}
			case "proxy":
				var servers []tlaval.Value
				for _, p := range cfg.Peers {
					servers = append(servers, tlaval.NewString(p.ID))
				}
				body = &proxy.Proxy{Self: cfg.SelfValue(), Servers: servers}
			case "kvstore-replica":
				body = &kvstore.Replica{Self: cfg.SelfValue()}
			default:
				return fmt.Errorf("archrun: unknown program %q", program)
			}

			metrics := archetype.NewMetrics(reg)

			archCtx, err := archetype.New(cfg.SelfValue(), program, makers, constants,
				archetype.WithLogger(logger), archetype.WithMetrics(metrics))
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.WithError(err).Warn("archrun: metrics server stopped")
					}
				}()
				defer metricsSrv.Close()
			}

			if monClient != nil {
				hbCtx, hbCancel := context.WithCancel(context.Background())
				defer hbCancel()
				interval := time.Duration(cfg.Monitor.HeartbeatMS) * time.Millisecond
				if interval <= 0 {
					interval = 2 * time.Second
				}
				monClient.RunUnder(hbCtx, cfg.SelfValue(), interval)
			}

			runDone := make(chan error, 1)
			go func() { runDone <- archCtx.Run(body) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sigCh:
				archCtx.Close()
				return <-runDone
			case err := <-runDone:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config", "directory containing default.yaml")
	cmd.Flags().StringVar(&env, "env", "", "optional environment overlay name")
	cmd.Flags().StringVar(&program, "program", "", "built-in program to run: proxy-server, proxy, kvstore-replica")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve /metrics (prometheus exposition); disabled if empty")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func toValue(v interface{}) tlaval.Value {
	switch x := v.(type) {
	case bool:
		return tlaval.NewBool(x)
	case int:
		return tlaval.NewNumber(int64(x))
	case int64:
		return tlaval.NewNumber(x)
	case float64:
		return tlaval.NewNumber(int64(x))
	case string:
		return tlaval.NewString(x)
	default:
		return tlaval.NewString(fmt.Sprint(x))
	}
}
