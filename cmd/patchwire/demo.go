package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/patchwire/internal/demo"
)

func demoCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Serve the demo counter app",
		Long: `Serve a small app that speaks the patch protocol.

Examples:
  patchwire demo
  patchwire demo --addr :9000 &
  patchwire run http://localhost:9000/ --follow /clock --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Demo.Addr = addr
			}
			logger := newLogger(cfg.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			success("demo on http://%s/", cfg.Demo.Addr)
			err = demo.New(demo.WithLogger(logger)).ListenAndServe(ctx, cfg.Demo.Addr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	return cmd
}
