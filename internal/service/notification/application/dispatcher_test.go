package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
	"shopflow/internal/contract"
)

type recordingPusher struct {
	online    map[string]bool
	pushed    map[string][][]byte
	broadcast [][]byte
}

func newRecordingPusher(online ...string) *recordingPusher {
	p := &recordingPusher{online: map[string]bool{}, pushed: map[string][][]byte{}}
	for _, u := range online {
		p.online[u] = true
	}
	return p
}

func (p *recordingPusher) Push(userID string, payload []byte) bool {
	if !p.online[userID] {
		return false
	}
	p.pushed[userID] = append(p.pushed[userID], payload)
	return true
}

func (p *recordingPusher) Broadcast(payload []byte) int {
	p.broadcast = append(p.broadcast, payload)
	return len(p.online)
}

type memoryDedup struct {
	seen map[string]bool
	err  error
}

func (m *memoryDedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

var tracer = noop.NewTracerProvider().Tracer("test")

func TestDispatchMailPushesToRecipient(t *testing.T) {
	pusher := newRecordingPusher("ann@example.com")
	d := NewDispatcher(pusher, nil, tracer)

	mail := contract.MailMessage{To: "ann@example.com", TemplateData: contract.MailData{ID: "o-1", Products: []string{"Lamp"}}}
	if err := d.DispatchMail(context.Background(), "e-1", mail); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	msgs := pusher.pushed["ann@example.com"]
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 push, got %d", len(msgs))
	}
	var n struct {
		Kind    string               `json:"kind"`
		EventID string               `json:"eventId"`
		Data    contract.MailMessage `json:"data"`
	}
	json.Unmarshal(msgs[0], &n)
	if n.Kind != KindMail || n.EventID != "e-1" || n.Data.TemplateData.ID != "o-1" {
		t.Errorf("Unexpected notification %+v", n)
	}
}

func TestDispatchMailDropsMissingRecipient(t *testing.T) {
	pusher := newRecordingPusher("")
	d := NewDispatcher(pusher, nil, tracer)

	if err := d.DispatchMail(context.Background(), "e-1", contract.MailMessage{TemplateData: contract.MailData{ID: "o-1"}}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pusher.pushed) != 0 {
		t.Errorf("Expected nothing pushed, got %v", pusher.pushed)
	}
}

func TestDispatchMailDeduplicatesByEventID(t *testing.T) {
	pusher := newRecordingPusher("ann@example.com")
	d := NewDispatcher(pusher, &memoryDedup{seen: map[string]bool{}}, tracer)
	mail := contract.MailMessage{To: "ann@example.com"}

	for i := 0; i < 3; i++ {
		if err := d.DispatchMail(context.Background(), "e-1", mail); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	if n := len(pusher.pushed["ann@example.com"]); n != 1 {
		t.Errorf("Expected 1 push for a redelivered event, got %d", n)
	}
}

func TestDispatchDeliversWhenDedupFails(t *testing.T) {
	pusher := newRecordingPusher("ann@example.com")
	d := NewDispatcher(pusher, &memoryDedup{err: errors.New("redis down")}, tracer)

	if err := d.DispatchMail(context.Background(), "e-1", contract.MailMessage{To: "ann@example.com"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pusher.pushed["ann@example.com"]) != 1 {
		t.Errorf("Expected mail to be delivered")
	}
}

func TestDispatchLowStockBroadcasts(t *testing.T) {
	pusher := newRecordingPusher("ops-1", "ops-2")
	d := NewDispatcher(pusher, nil, tracer)

	alert := contract.LowStockAlert{Items: []contract.LowStockItem{{ProductID: "p1", Quantity: 2}}}
	if err := d.DispatchLowStock(context.Background(), "e-9", alert); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pusher.broadcast) != 1 {
		t.Errorf("Expected 1 broadcast, got %d", len(pusher.broadcast))
	}
}
