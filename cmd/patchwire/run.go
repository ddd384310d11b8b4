package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/runtime"
)

func runCmd(flags *globalFlags) *cobra.Command {
	var (
		follow      []string
		watch       bool
		record      string
		metricsAddr string
		printHTML   bool
	)

	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Load a page and apply its patch streams",
		Long: `Load a page, bind it and keep it live until interrupted.

Examples:
  patchwire run http://localhost:8080/
  patchwire run --follow /clock --watch
  patchwire run --record session.msgpack --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.URL = args[0]
			}
			if cfg.URL == "" {
				return fmt.Errorf("no page url: pass one or set url in the config file")
			}
			if record != "" {
				cfg.Record.File = record
				cfg.Record.Bucket = ""
			}
			if metricsAddr != "" {
				cfg.Metrics.Addr = metricsAddr
			}
			logger := newLogger(cfg.Log, os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := serveMetrics(ctx, cfg.Metrics.Addr, logger)
			rec, err := openRecorder(cfg.Record, logger)
			if err != nil {
				return err
			}

			w := newWatcher(os.Stdout)
			opts := []runtime.Option{
				runtime.WithLogger(logger),
				runtime.WithMetrics(m),
				runtime.WithIdleTimeout(time.Duration(cfg.Stream.IdleTimeout)),
				runtime.WithMaxCascadeDepth(cfg.Signals.MaxCascadeDepth),
				runtime.WithLocalPrefix(cfg.Signals.LocalPrefix),
				runtime.WithRetry(cfg.Retry.Policy()),
			}
			if rec != nil {
				opts = append(opts, runtime.WithRecorder(rec))
			}
			if watch {
				opts = append(opts, runtime.WithEventHook(w.event))
			}

			page, err := runtime.Load(ctx, cfg.URL, opts...)
			if err != nil {
				return err
			}
			if err := page.Start(); err != nil {
				warn("some bindings failed: %v", err)
			}
			if watch {
				w.attach(page)
			}
			for _, u := range follow {
				if _, err := page.Follow(ctx, u); err != nil {
					page.Close()
					return err
				}
			}
			success("page live: %s", cfg.URL)

			err = page.Run(ctx)
			if printHTML {
				done := make(chan string, 1)
				page.Loop.Post(func() { done <- page.HTML() })
				page.Loop.Drain()
				fmt.Println(<-done)
			}
			page.Close()
			if rec != nil {
				if cerr := rec.Close(); cerr != nil {
					errorMsg("recording: %v", cerr)
				} else {
					info("recorded %d frames", rec.Entries())
				}
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, loop.ErrClosed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&follow, "follow", "f", nil, "Stream URL to follow (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print the DOM and signal changes of every event")
	cmd.Flags().StringVar(&record, "record", "", "Record stream frames to this file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&printHTML, "print", false, "Print the final document on exit")
	return cmd
}
