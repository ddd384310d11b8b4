package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/patchwire/pkg/dom"
	"github.com/vango-dev/patchwire/pkg/record"
	"github.com/vango-dev/patchwire/pkg/runtime"
	"github.com/vango-dev/patchwire/pkg/stream"
)

func replayCmd(flags *globalFlags) *cobra.Command {
	var (
		pageURL  string
		pageFile string
		speed    float64
		only     string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Apply a recorded session to a page",
		Long: `Replay a recording made with "run --record" against a page and
print the resulting document. The recording is a file path or an
s3://bucket/key location.

Examples:
  patchwire replay session.msgpack --page index.html
  patchwire replay s3://sessions/today.msgpack --url http://localhost:8080/ --speed 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, os.Stderr)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			src, err := openRecording(ctx, args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			w := newWatcher(os.Stdout)
			opts := []runtime.Option{
				runtime.WithLogger(logger),
				runtime.WithLocalPrefix(cfg.Signals.LocalPrefix),
				runtime.WithMaxCascadeDepth(cfg.Signals.MaxCascadeDepth),
			}
			if watch {
				opts = append(opts, runtime.WithEventHook(w.event))
			}

			var page *runtime.Page
			switch {
			case pageFile != "":
				f, err := os.Open(pageFile)
				if err != nil {
					return err
				}
				doc, err := dom.Parse(f)
				f.Close()
				if err != nil {
					return err
				}
				page = runtime.New(doc, nil, opts...)
			default:
				if pageURL == "" {
					pageURL = cfg.URL
				}
				if pageURL == "" {
					return fmt.Errorf("no page: pass --page or --url")
				}
				page, err = runtime.Load(ctx, pageURL, opts...)
				if err != nil {
					return err
				}
			}
			defer page.Close()
			if err := page.Start(); err != nil {
				warn("some bindings failed: %v", err)
			}
			if watch {
				w.attach(page)
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go page.Run(runCtx)

			cc := make(chan *stream.Consumer, 1)
			page.Loop.Post(func() { cc <- page.NewConsumer() })
			c := <-cc
			if err := record.Replay(ctx, record.NewReader(src), c, record.ReplayOptions{Speed: speed, Stream: only}); err != nil {
				return err
			}
			<-c.Done()

			html := make(chan string, 1)
			page.Loop.Post(func() { html <- page.HTML() })
			if !watch {
				fmt.Println(<-html)
			} else {
				<-html
			}
			success("replayed %d frames", c.Frames())
			return c.Err()
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "Load the page from this URL (default: url from config)")
	cmd.Flags().StringVar(&pageFile, "page", "", "Load the page from this HTML file")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Replay speed factor; 0 replays without pauses")
	cmd.Flags().StringVar(&only, "stream", "", "Replay only the frames of this stream id")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print the DOM and signal changes of every event")
	return cmd
}

// openRecording opens a file path or an s3://bucket/key location.
func openRecording(ctx context.Context, loc string) (io.ReadCloser, error) {
	if !strings.HasPrefix(loc, "s3://") {
		return os.Open(loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		return nil, err
	}
	return record.OpenS3(ctx, newS3Client(), u.Host, strings.TrimPrefix(u.Path, "/"))
}
