package record

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vmihailenco/msgpack/v5"
)

// Sink stores entries.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// FileSink writes entries to a local file.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// CreateFile creates (or truncates) path and returns a sink writing to it.
func CreateFile(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileSink{f: f, buf: buf, enc: msgpack.NewEncoder(buf)}, nil
}

// Write appends e.
func (s *FileSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(&e)
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// S3API is the part of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ContentType is the media type of stored recordings.
const ContentType = "application/vnd.msgpack"

// S3Sink buffers entries and uploads them as one object on Close.
type S3Sink struct {
	client  S3API
	bucket  string
	key     string
	timeout time.Duration

	mu  sync.Mutex
	buf bytes.Buffer
	enc *msgpack.Encoder
}

// NewS3Sink returns a sink that uploads to bucket/key.
func NewS3Sink(client S3API, bucket, key string) *S3Sink {
	s := &S3Sink{client: client, bucket: bucket, key: key, timeout: time.Minute}
	s.enc = msgpack.NewEncoder(&s.buf)
	return s
}

// Write buffers e.
func (s *S3Sink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(&e)
}

// Close uploads the recording.
func (s *S3Sink) Close() error {
	s.mu.Lock()
	body := bytes.NewReader(append([]byte(nil), s.buf.Bytes()...))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        body,
		ContentType: aws.String(ContentType),
		Metadata: map[string]string{
			"recorded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// OpenS3 opens a recording stored at bucket/key.
func OpenS3(ctx context.Context, client S3API, bucket, key string) (io.ReadCloser, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 download failed: %w", err)
	}
	return out.Body, nil
}
