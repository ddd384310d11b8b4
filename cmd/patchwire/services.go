package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/patchwire/internal/config"
	"github.com/vango-dev/patchwire/pkg/metrics"
	"github.com/vango-dev/patchwire/pkg/record"
)

// serveMetrics registers the collectors on a fresh registry and, when addr
// is set, serves them at /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	if addr == "" {
		return m
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", addr)
	return m
}

// newS3Client builds a client from the standard AWS environment variables.
// AWS_ENDPOINT_URL points it at an S3-compatible store.
func newS3Client() *s3.Client {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// openRecorder returns nil when recording is not configured.
func openRecorder(cfg config.RecordConfig, logger *slog.Logger) (*record.Recorder, error) {
	var sink record.Sink
	switch {
	case cfg.File != "":
		fs, err := record.CreateFile(cfg.File)
		if err != nil {
			return nil, err
		}
		sink = fs
	case cfg.Bucket != "":
		sink = record.NewS3Sink(newS3Client(), cfg.Bucket, cfg.Key)
	default:
		return nil, nil
	}
	return record.NewRecorder(sink, record.WithLogger(logger)), nil
}
