// Package notify delivers due reminders to the outside world.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "remindly/internal/log"
	"remindly/internal/model"
)

// Message is one reminder ready for delivery.
type Message struct {
	ReminderID  int64              `json:"reminder_id"`
	TaskID      string             `json:"task_id"`
	Title       string             `json:"title"`
	Type        model.ReminderType `json:"type"`
	OccursAt    time.Time          `json:"occurs_at"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	Special     bool               `json:"special"`
	Text        string             `json:"text"`
}

// NewMessage builds the message for r. Times are shown in loc.
func NewMessage(r model.Reminder, task model.Task, loc *time.Location) Message {
	return Message{
		ReminderID:  r.ID,
		TaskID:      r.TaskID,
		Title:       task.Title,
		Type:        r.Type,
		OccursAt:    r.OccursAt.In(loc),
		ScheduledAt: r.ScheduledAt.In(loc),
		Special:     task.Special,
		Text:        render(r.Type, task.Title, r.OccursAt.In(loc)),
	}
}

func render(typ model.ReminderType, title string, at time.Time) string {
	clock := at.Format("15:04")
	switch typ {
	case model.ReminderDaily:
		return fmt.Sprintf("Today: %s at %s", title, clock)
	case model.ReminderHourly:
		return fmt.Sprintf("Soon: %s at %s", title, clock)
	case model.ReminderSpecialDayBefore:
		return fmt.Sprintf("Tomorrow: %s at %s (%s)", title, clock, at.Format("Mon Jan 2"))
	case model.ReminderSpecialDayOf:
		return fmt.Sprintf("Today is the day: %s at %s", title, clock)
	}
	return fmt.Sprintf("%s at %s", title, at.Format("2006-01-02 15:04"))
}

// Notifier sends a message to one channel.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Webhook POSTs each message as JSON to a fixed URL.
type Webhook struct {
	URL    string
	client *http.Client
}

// NewWebhook returns a webhook notifier. timeout <= 0 means 10 seconds.
func NewWebhook(rawURL string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{URL: rawURL, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "remindly/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", RedactURL(w.URL), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: HTTP %d", RedactURL(w.URL), resp.StatusCode)
	}
	return nil
}

// Log writes each message to the process log. Used when no webhook is
// configured.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Send(_ context.Context, msg Message) error {
	appLog.Info("reminder",
		"type", string(msg.Type),
		"task", msg.TaskID,
		"title", msg.Title,
		"occurs_at", msg.OccursAt.Format(time.RFC3339),
		"text", msg.Text,
	)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RedactURL keeps only scheme and host so tokens embedded in webhook paths
// or queries never reach the log.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "webhook://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
