package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionLiteRegistration = "lite_registration"
	ActionWebhookEvent     = "webhook_event"
	ActionWebhookRejected  = "webhook_rejected"
	ActionAccountMerged    = "account_merged"
	ActionAccountUpdated   = "account_updated"
)

// Entry is one audit trail record.
type Entry struct {
	ID        uuid.UUID
	Timestamp time.Time
	Action    string
	Email     string
	UID       string
	Tenant    string
	RequestID string
	Detail    string
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// NewEntry stamps an entry with an ID and timestamp.
func NewEntry(action string) Entry {
	return Entry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}
