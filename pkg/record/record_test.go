package record

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/patchwire/pkg/loop"
	"github.com/vango-dev/patchwire/pkg/stream"
)

var frames = []stream.Frame{
	{Event: stream.EventPatchSignals, Data: []string{`signals {"n":1}`}},
	{Comments: []string{""}},
	{Event: stream.EventPatchElements, ID: "2", Data: []string{"selector #a", "mode inner", "elements <b>hi</b>"}},
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(10 * time.Millisecond)
		return t
	}
}

func recordAll(t *testing.T, sink Sink, id string) {
	t.Helper()
	r := NewRecorder(sink, WithClock(fixedClock()))
	tap := r.Tap(id)
	for _, f := range frames {
		tap(f)
	}
	if r.Entries() != len(frames) {
		t.Fatalf("entries = %d", r.Entries())
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func checkEntries(t *testing.T, got []Entry, id string) {
	t.Helper()
	if len(got) != len(frames) {
		t.Fatalf("got %d entries, want %d", len(got), len(frames))
	}
	for i, e := range got {
		if e.Stream != id {
			t.Errorf("entry %d stream = %q", i, e.Stream)
		}
		if diff := cmp.Diff(frames[i], e.Frame()); diff != "" {
			t.Errorf("entry %d frame (-want +got):\n%s", i, diff)
		}
	}
	if !got[1].At.After(got[0].At) {
		t.Error("timestamps not increasing")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.pwr")
	sink, err := CreateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	recordAll(t, sink, "live")

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	checkEntries(t, got, "live")
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, stderrors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3RoundTrip(t *testing.T) {
	client := newFakeS3()
	recordAll(t, NewS3Sink(client, "recordings", "2024/run.pwr"), "s1")

	if got := client.types["recordings/2024/run.pwr"]; got != ContentType {
		t.Errorf("content type = %q", got)
	}
	body, err := OpenS3(context.Background(), client, "recordings", "2024/run.pwr")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	got, err := ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	checkEntries(t, got, "s1")

	if _, err := OpenS3(context.Background(), client, "recordings", "missing"); err == nil {
		t.Error("OpenS3 of a missing key succeeded")
	}
}

type failingSink struct {
	writes int
}

func (s *failingSink) Write(Entry) error {
	s.writes++
	return stderrors.New("disk full")
}

func (s *failingSink) Close() error { return nil }

func TestRecorderStopsOnError(t *testing.T) {
	sink := &failingSink{}
	r := NewRecorder(sink)
	r.Record("a", frames[0])
	r.Record("a", frames[1])
	if sink.writes != 1 {
		t.Errorf("writes = %d, want 1", sink.writes)
	}
	if err := r.Close(); err == nil {
		t.Error("Close did not report the write error")
	}
}

func memRecording(t *testing.T, entries ...Entry) *bytes.Buffer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem.pwr")
	sink, err := CreateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := sink.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(data)
}

type names struct {
	mu   sync.Mutex
	list []string
}

func (n *names) HandleEvent(ev stream.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, stream.Name(ev))
	return nil
}

func TestReplay(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := memRecording(t,
		NewEntry("a", start, frames[0]),
		NewEntry("b", start.Add(time.Millisecond), stream.Frame{Event: stream.EventExecuteScript, Data: []string{"script $x = 1"}}),
		NewEntry("a", start.Add(2*time.Millisecond), frames[1]),
		NewEntry("a", start.Add(3*time.Millisecond), frames[2]),
	)

	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	defer l.Close()

	sink := &names{}
	c := stream.NewConsumer(l, sink)
	if err := Replay(ctx, NewReader(rec), c, ReplayOptions{Speed: 10, Stream: "a"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
	if c.State() != stream.StateClosed {
		t.Fatalf("state = %s, err = %v", c.State(), c.Err())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	want := []string{stream.EventPatchSignals, stream.EventPatchElements}
	if diff := cmp.Diff(want, sink.list); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
