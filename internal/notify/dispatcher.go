// Package notify fans inquiry events out to recipients. Every sink is
// best-effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"time"

	"bazaar/leadhub/internal/utils"
)

type EventType string

const (
	EventNewInquiry      EventType = "new_inquiry"
	EventInquiryResponse EventType = "inquiry_response"
	EventPaymentReminder EventType = "payment_reminder"
)

// Event is the payload delivered to every recipient.
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// InquiryID returns the inquiry the event is about, if present.
func (e Event) InquiryID() string {
	switch v := e.Data["inquiry_id"].(type) {
	case string:
		return v
	case utils.SixID:
		return v.String()
	}
	return ""
}

// Dispatcher delivers an event to a set of users.
type Dispatcher interface {
	Notify(ctx context.Context, recipientIDs []utils.SixID, event Event)
}

// Noop drops every event.
type Noop struct{}

func (Noop) Notify(context.Context, []utils.SixID, Event) {}

// Multi delivers to each sink in order.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, recipientIDs []utils.SixID, event Event) {
	if len(recipientIDs) == 0 {
		return
	}
	for _, d := range m {
		if d != nil {
			d.Notify(ctx, recipientIDs, event)
		}
	}
}
