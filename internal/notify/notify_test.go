package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"remindly/internal/model"
)

var kst = time.FixedZone("KST", 9*3600)

func sampleMessage() Message {
	occurs := time.Date(2025, 9, 13, 7, 0, 0, 0, kst)
	r := model.Reminder{
		ID:          42,
		TaskID:      "t1",
		InstanceKey: model.InstanceKey("t1", occurs),
		OccursAt:    occurs.UTC(),
		Type:        model.ReminderSpecialDayBefore,
		ScheduledAt: occurs.AddDate(0, 0, -1).UTC(),
	}
	return NewMessage(r, model.Task{ID: "t1", Title: "Gym", Special: true}, kst)
}

func TestNewMessage(t *testing.T) {
	msg := sampleMessage()
	if msg.Text != "Tomorrow: Gym at 07:00 (Sat Sep 13)" {
		t.Fatalf("text = %q", msg.Text)
	}
	if msg.OccursAt.Location() != kst || !msg.Special || msg.ReminderID != 42 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestWebhook_Send(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL+"/hook", time.Second).Send(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.TaskID != "t1" || got.Type != model.ReminderSpecialDayBefore || got.Title != "Gym" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhook_ErrorStatusRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL+"/secret-token", time.Second).Send(context.Background(), sampleMessage())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks URL path: %v", err)
	}
}

type failing struct{}

func (failing) Name() string                        { return "failing" }
func (failing) Send(context.Context, Message) error { return errors.New("boom") }

func TestMulti(t *testing.T) {
	m := Multi{Log{}, failing{}}
	err := m.Send(context.Background(), sampleMessage())
	if err == nil || !strings.Contains(err.Error(), "failing: boom") {
		t.Fatalf("err = %v", err)
	}
	if err := (Multi{Log{}}).Send(context.Background(), sampleMessage()); err != nil {
		t.Fatalf("log-only err = %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://hooks.example.com/services/T0/B0/xyz?x=1", "https://hooks.example.com/...(redacted)"},
		{"not a url", "webhook://...(redacted)"},
	}
	for _, tt := range tests {
		if got := RedactURL(tt.in); got != tt.want {
			t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
