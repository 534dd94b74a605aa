package mq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingWriter struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	err       error
	failFirst int // 前 failFirst 次写入返回错误
	attempts  int
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.err != nil {
		return w.err
	}
	if w.attempts <= w.failFirst {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) attemptCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

// fakeReader 依次返回预置消息，取完后阻塞直到 ctx 结束或被关闭
type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    chan struct{}
	once      sync.Once
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{pending: msgs, closed: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, errors.New("reader closed")
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("evt-1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("Expected traceparent header to be injected")
	}
	if HeaderValue(headers, HeaderEventID) != "evt-1" {
		t.Errorf("Expected existing headers to be kept")
	}

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	if extracted.TraceID() != traceID {
		t.Errorf("Expected trace id %s, got %s", traceID, extracted.TraceID())
	}
}

func TestProduceToTopic(t *testing.T) {
	w := &recordingWriter{}
	err := ProduceToTopic(context.Background(), w, "mail", []byte("k"), []byte(`{}`), kafka.Header{Key: HeaderEventID, Value: []byte("e")})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	msgs := w.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Topic != "mail" || string(msgs[0].Key) != "k" {
		t.Errorf("Unexpected message %+v", msgs[0])
	}
}

func TestFailureHandlerPublishesToDLT(t *testing.T) {
	w := &recordingWriter{}
	h := NewFailureHandler(w)

	msg := kafka.Message{Topic: "order-confirmed", Partition: 2, Offset: 42, Key: []byte("o-1"), Value: []byte("{}")}
	if err := h.Handle(context.Background(), msg, errors.New("boom")); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	msgs := w.messages()
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", len(msgs))
	}
	dead := msgs[0]
	if dead.Topic != "order-confirmed.DLT" {
		t.Errorf("Expected DLT topic, got %s", dead.Topic)
	}
	if HeaderValue(dead.Headers, HeaderOriginalOffset) != "42" {
		t.Errorf("Expected original offset 42, got %q", HeaderValue(dead.Headers, HeaderOriginalOffset))
	}
	if HeaderValue(dead.Headers, HeaderOriginalPartition) != "2" {
		t.Errorf("Expected original partition 2, got %q", HeaderValue(dead.Headers, HeaderOriginalPartition))
	}
	if HeaderValue(dead.Headers, HeaderExceptionMessage) != "boom" {
		t.Errorf("Expected exception message boom, got %q", HeaderValue(dead.Headers, HeaderExceptionMessage))
	}
}

func TestConsumerCommitsAndRoutesFailures(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Topic: "order-confirmed", Offset: 1, Value: []byte("ok")},
		kafka.Message{Topic: "order-confirmed", Offset: 2, Value: []byte("bad")},
	)
	dlt := &recordingWriter{}

	var mu sync.Mutex
	var handled []string
	handler := func(_ context.Context, msg kafka.Message) error {
		mu.Lock()
		handled = append(handled, string(msg.Value))
		mu.Unlock()
		if string(msg.Value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	}

	c := NewConsumer("order-confirmed", reader, handler, NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reader.committedCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	c.Stop(context.Background())

	if reader.committedCount() != 2 {
		t.Fatalf("Expected 2 committed messages, got %d", reader.committedCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 {
		t.Errorf("Expected 2 handled messages, got %d", len(handled))
	}
	if len(dlt.messages()) != 1 {
		t.Errorf("Expected 1 dead letter, got %d", len(dlt.messages()))
	}
}

func TestConsumerHoldsOffsetWhenDeadLetterFails(t *testing.T) {
	reader := newFakeReader(kafka.Message{Topic: "order-confirmed", Offset: 7, Value: []byte("bad")})
	dlt := &recordingWriter{err: errors.New("broker unavailable")}
	var handled atomic.Int32
	handler := func(_ context.Context, _ kafka.Message) error {
		handled.Add(1)
		return errors.New("cannot handle")
	}

	c := NewConsumer("order-confirmed", reader, handler, NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"))
	c.backoff = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for dlt.attemptCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop(context.Background())

	if dlt.attemptCount() < 3 {
		t.Fatalf("Expected dead letter to be retried, got %d attempts", dlt.attemptCount())
	}
	if len(dlt.messages()) != 0 {
		t.Errorf("Expected no dead letters, got %d", len(dlt.messages()))
	}
	if reader.committedCount() != 0 {
		t.Errorf("Expected offset to be held, got %d commits", reader.committedCount())
	}
	if handled.Load() != 1 {
		t.Errorf("Expected handler to run once, got %d", handled.Load())
	}
}

func TestConsumerCommitsOnceDeadLetterRecovers(t *testing.T) {
	reader := newFakeReader(kafka.Message{Topic: "order-confirmed", Offset: 7, Value: []byte("bad")})
	dlt := &recordingWriter{failFirst: 2}
	handler := func(_ context.Context, _ kafka.Message) error {
		return errors.New("cannot handle")
	}

	c := NewConsumer("order-confirmed", reader, handler, NewFailureHandler(dlt), noop.NewTracerProvider().Tracer("test"))
	c.backoff = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reader.committedCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop(context.Background())

	if reader.committedCount() != 1 {
		t.Fatalf("Expected 1 committed message, got %d", reader.committedCount())
	}
	if dlt.attemptCount() != 3 {
		t.Errorf("Expected 3 dead letter attempts, got %d", dlt.attemptCount())
	}
	if len(dlt.messages()) != 1 {
		t.Errorf("Expected 1 dead letter, got %d", len(dlt.messages()))
	}
}
