package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/homeservices/libs/kafkax"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type memInbox struct {
	seen map[string]bool
}

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, id string) error {
	delete(m.seen, id)
	return nil
}

type memJobs struct {
	jobs map[string]model.Job
	err  error
}

func (m *memJobs) ApplyJob(_ context.Context, job model.Job) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if prev, ok := m.jobs[job.ID]; ok && prev.StatusUpdatedAt.After(job.StatusUpdatedAt) {
		return false, nil
	}
	m.jobs[job.ID] = job
	return true, nil
}

// flakyJobs fails the first failures calls.
type flakyJobs struct {
	memJobs
	failures int
	calls    int
}

func (f *flakyJobs) ApplyJob(ctx context.Context, job model.Job) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, errors.New("db down")
	}
	return f.memJobs.ApplyJob(ctx, job)
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed chan kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		msg := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed <- m
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jobMessage(eventID, payload string) kafka.Message {
	return kafka.Message{
		Topic: TopicJobStatusChanged,
		Value: []byte(payload),
		Headers: []kafka.Header{
			{Key: kafkax.HeaderEventID, Value: []byte(eventID)},
			{Key: kafkax.HeaderEventType, Value: []byte(TopicJobStatusChanged)},
		},
	}
}

func TestJobStatusHandlerProjectsAndDedupes(t *testing.T) {
	jobs := &memJobs{jobs: map[string]model.Job{}}
	c := New(discard(), &memInbox{seen: map[string]bool{}}, Config{}, JobStatusHandler(discard(), jobs))

	msg := jobMessage("e1", `{"job_id":"j1","contractor_id":"c1","status":"Scheduled","scheduled_at":"2026-03-09T10:00:00Z","estimated_duration_minutes":90,"occurred_at":"2026-03-01T08:00:00Z"}`)
	if err := c.process(context.Background(), msg); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := jobs.jobs["j1"]
	if got.Status != model.StatusScheduled || got.EstimatedMinutes != 90 || got.ContractorID != "c1" {
		t.Fatalf("unexpected projection: %+v", got)
	}

	jobs.jobs["j1"] = model.Job{ID: "j1", Status: model.StatusCancelled}
	if err := c.process(context.Background(), msg); err != nil {
		t.Fatalf("duplicate process: %v", err)
	}
	if jobs.jobs["j1"].Status != model.StatusCancelled {
		t.Fatal("duplicate delivery must not be applied twice")
	}
}

func TestJobStatusHandlerSkipsStaleEvents(t *testing.T) {
	jobs := &memJobs{jobs: map[string]model.Job{
		"j1": {ID: "j1", Status: model.StatusCancelled, StatusUpdatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	}}
	h := JobStatusHandler(discard(), jobs)
	err := h(context.Background(), jobMessage("e2", `{"job_id":"j1","contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z","occurred_at":"2026-03-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if jobs.jobs["j1"].Status != model.StatusCancelled {
		t.Fatal("older event overwrote newer status")
	}
}

func TestJobStatusHandlerDropsMalformedEvents(t *testing.T) {
	jobs := &memJobs{jobs: map[string]model.Job{}}
	h := JobStatusHandler(discard(), jobs)
	for _, payload := range []string{
		`not json`,
		`{"contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z"}`,
		`{"job_id":"j1","contractor_id":"c1","status":"lost","scheduled_at":"2026-03-09T10:00:00Z"}`,
		`{"job_id":"j1","contractor_id":"c1","status":"scheduled"}`,
	} {
		if err := h(context.Background(), jobMessage("e", payload)); err != nil {
			t.Fatalf("malformed payload should be dropped, got %v", err)
		}
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("malformed events were applied: %v", jobs.jobs)
	}
}

func TestProcessReleasesInboxOnFailure(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	jobs := &memJobs{jobs: map[string]model.Job{}, err: errors.New("db down")}
	c := New(discard(), inbox, Config{}, JobStatusHandler(discard(), jobs))

	msg := jobMessage("e3", `{"job_id":"j1","contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z"}`)
	if err := c.process(context.Background(), msg); err == nil {
		t.Fatal("expected handler error")
	}
	if inbox.seen["e3"] {
		t.Fatal("failed event should be released from the inbox")
	}

	jobs.err = nil
	if err := c.process(context.Background(), msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := jobs.jobs["j1"]; !ok {
		t.Fatal("retry should apply the event")
	}
}

func TestRunWithoutBrokersReturns(t *testing.T) {
	c := New(discard(), &memInbox{}, Config{Topic: TopicJobStatusChanged}, nil)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when disabled")
	}
}

func TestProcessKeepsStatusChangesWithoutEventID(t *testing.T) {
	jobs := &memJobs{jobs: map[string]model.Job{}}
	c := New(discard(), &memInbox{seen: map[string]bool{}}, Config{}, JobStatusHandler(discard(), jobs))

	booked := kafka.Message{
		Topic: TopicJobStatusChanged, Partition: 0, Offset: 1, Key: []byte("j1"),
		Value: []byte(`{"job_id":"j1","contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z","occurred_at":"2026-03-01T08:00:00Z"}`),
	}
	cancelled := booked
	cancelled.Offset = 2
	cancelled.Value = []byte(`{"job_id":"j1","contractor_id":"c1","status":"cancelled","scheduled_at":"2026-03-09T10:00:00Z","occurred_at":"2026-03-02T08:00:00Z"}`)

	for _, msg := range []kafka.Message{booked, cancelled} {
		if err := c.process(context.Background(), msg); err != nil {
			t.Fatalf("process offset %d: %v", msg.Offset, err)
		}
	}
	if got := jobs.jobs["j1"].Status; got != model.StatusCancelled {
		t.Fatalf("later status change was dropped, got %q", got)
	}
}

func TestRunCommitsOnlyAfterHandlerSucceeds(t *testing.T) {
	jobs := &flakyJobs{memJobs: memJobs{jobs: map[string]model.Job{}}, failures: 1}
	reader := &fakeReader{
		pending:   []kafka.Message{jobMessage("e4", `{"job_id":"j1","contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z"}`)},
		committed: make(chan kafka.Message, 1),
	}
	c := New(discard(), &memInbox{seen: map[string]bool{}}, Config{}, JobStatusHandler(discard(), jobs))
	c.reader = reader
	c.retryBase, c.retryMax = time.Millisecond, 2*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case msg := <-reader.committed:
		if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) != "e4" {
			t.Fatalf("unexpected commit: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was never committed")
	}
	if jobs.calls != 2 {
		t.Fatalf("expected one failure then one success, got %d calls", jobs.calls)
	}
	if _, ok := jobs.jobs["j1"]; !ok {
		t.Fatal("event was committed without being applied")
	}
	cancel()
	<-done
}

func TestRunLeavesFailingMessageUncommitted(t *testing.T) {
	jobs := &flakyJobs{memJobs: memJobs{jobs: map[string]model.Job{}}, failures: 1 << 30}
	reader := &fakeReader{
		pending:   []kafka.Message{jobMessage("e5", `{"job_id":"j1","contractor_id":"c1","status":"scheduled","scheduled_at":"2026-03-09T10:00:00Z"}`)},
		committed: make(chan kafka.Message, 1),
	}
	c := New(discard(), &memInbox{seen: map[string]bool{}}, Config{}, JobStatusHandler(discard(), jobs))
	c.reader = reader
	c.retryBase, c.retryMax = time.Millisecond, time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	select {
	case msg := <-reader.committed:
		t.Fatalf("failing message was committed: %+v", msg)
	default:
	}
	if jobs.calls < 2 {
		t.Fatalf("expected retries before shutdown, got %d calls", jobs.calls)
	}
}
