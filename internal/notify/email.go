package notify

import (
	"context"
	"log"

	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/utils"
)

// EmailEnqueuer schedules one templated email.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, to, templateID string, data map[string]interface{}) error
}

// UserLookup resolves recipient accounts.
type UserLookup interface {
	UsersByIDs(ctx context.Context, ids []utils.SixID) ([]models.User, error)
}

// EmailDispatcher queues an email per recipient, using the event type as template id.
type EmailDispatcher struct {
	users UserLookup
	queue EmailEnqueuer
}

func NewEmailDispatcher(users UserLookup, queue EmailEnqueuer) *EmailDispatcher {
	return &EmailDispatcher{users: users, queue: queue}
}

func (d *EmailDispatcher) Notify(ctx context.Context, recipientIDs []utils.SixID, event Event) {
	users, err := d.users.UsersByIDs(ctx, recipientIDs)
	if err != nil {
		log.Printf("Notify: failed to resolve %d recipients for %s email: %v", len(recipientIDs), event.Type, err)
		return
	}
	queued := 0
	for _, u := range users {
		if u.Email == "" || !u.Active {
			continue
		}
		data := make(map[string]interface{}, len(event.Data)+1)
		for k, v := range event.Data {
			data[k] = v
		}
		data["recipient_name"] = u.Name
		if err := d.queue.EnqueueEmail(ctx, u.Email, string(event.Type), data); err != nil {
			log.Printf("Notify: failed to enqueue %s email for %s: %v", event.Type, u.ID, err)
			continue
		}
		queued++
	}
	log.Printf("Notify: queued %d %s emails", queued, event.Type)
}
