package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpcal-lang/distsys/monitor"
)

func main() {
	root := serveCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr, httpAddr string
	var windowMS int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "run the distsys monitor service",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.StandardLogger()

			srv, err := monitor.NewServer(addr, time.Duration(windowMS)*time.Millisecond, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			logger.WithField("addr", srv.Addr()).Info("monitor: listening")

			status := monitor.NewStatusServer(httpAddr, srv, nil)
			go func() {
				if err := status.Start(); err != nil {
					logger.WithError(err).Warn("monitor: http status server stopped")
				}
			}()
			defer status.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logger.Info("monitor: shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:9500", "address for the heartbeat/query TCP listener")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "0.0.0.0:9501", "address for the read-only HTTP status endpoint")
	cmd.Flags().IntVar(&windowMS, "inactivity-window-ms", 5000, "silence tolerated before a peer is suspected, in milliseconds")
	return cmd
}
