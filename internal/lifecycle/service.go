// Package lifecycle reacts to account events pushed by the directory:
// registrations, merges, and profile updates.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
)

// Event types delivered by the directory webhook.
const (
	EventAccountRegistered = "accountRegistered"
	EventAccountMerged     = "accountMerged"
	EventAccountUpdated    = "accountUpdated"
)

// Notification topics.
const (
	TopicAccountRegistered = "cdcam.accounts.registered"
	TopicAccountMerged     = "cdcam.accounts.merged"
	TopicAccountUpdated    = "cdcam.accounts.updated"
)

// Event is one account lifecycle notification.
type Event struct {
	Type string
	UID  string
	// NewUID is set on merge events and names the surviving account.
	NewUID    string
	RequestID string
}

// Directory is the subset of the directory client the lifecycle service uses.
type Directory interface {
	SearchByUID(ctx context.Context, tenant directory.Tenant, uid string) (directory.Account, bool, error)
	SetAccountInfo(ctx context.Context, tenant directory.Tenant, uid string, params url.Values) error
}

// Notifier publishes downstream notifications.
type Notifier interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service processes lifecycle events. Merge and update events only act on
// federated accounts; site accounts manage their own profiles.
type Service struct {
	dir      Directory
	tenant   directory.Tenant
	notifier Notifier
	recorder audit.Recorder
	logger   *slog.Logger
}

func NewService(dir Directory, tenant directory.Tenant, notifier Notifier, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{dir: dir, tenant: tenant, notifier: notifier, recorder: recorder, logger: logger}
}

// Handle dispatches one event. Unknown event types are logged and dropped.
func (s *Service) Handle(ctx context.Context, event Event) error {
	switch event.Type {
	case EventAccountRegistered:
		return s.handleRegistered(ctx, event)
	case EventAccountMerged:
		return s.handleMerged(ctx, event)
	case EventAccountUpdated:
		return s.handleUpdated(ctx, event)
	default:
		s.logger.WarnContext(ctx, "unknown lifecycle event type", "type", event.Type)
		return nil
	}
}

func (s *Service) handleRegistered(ctx context.Context, event Event) error {
	account, found, err := s.dir.SearchByUID(ctx, s.tenant, event.UID)
	if err != nil {
		return fmt.Errorf("fetch registered account: %w", err)
	}
	if !found {
		s.logger.WarnContext(ctx, "registered account not found", "type", event.Type)
		return nil
	}

	s.record(ctx, audit.ActionWebhookEvent, event, account)
	return s.notify(ctx, TopicAccountRegistered, account)
}

func (s *Service) handleMerged(ctx context.Context, event Event) error {
	// Merges survive under the new UID when the directory provides one.
	uid := event.NewUID
	if uid == "" {
		uid = event.UID
	}

	account, found, err := s.dir.SearchByUID(ctx, s.tenant, uid)
	if err != nil {
		return fmt.Errorf("fetch merged account: %w", err)
	}
	if !found {
		s.logger.WarnContext(ctx, "merged account not found", "type", event.Type)
		return nil
	}
	if !account.IsFederated() {
		s.logger.DebugContext(ctx, "skipping merge for non-federated account")
		return nil
	}

	if err := s.syncUsername(ctx, account); err != nil {
		return err
	}

	s.record(ctx, audit.ActionAccountMerged, event, account)
	return s.notify(ctx, TopicAccountMerged, account)
}

func (s *Service) handleUpdated(ctx context.Context, event Event) error {
	account, found, err := s.dir.SearchByUID(ctx, s.tenant, event.UID)
	if err != nil {
		return fmt.Errorf("fetch updated account: %w", err)
	}
	if !found || !account.IsFederated() {
		return nil
	}

	if err := s.syncUsername(ctx, account); err != nil {
		return err
	}

	s.record(ctx, audit.ActionAccountUpdated, event, account)
	return s.notify(ctx, TopicAccountUpdated, account)
}

// syncUsername realigns the login username with the profile email. Federated
// flows can leave the two diverged after the identity provider rewrites the
// profile.
func (s *Service) syncUsername(ctx context.Context, account directory.Account) error {
	profile, err := json.Marshal(map[string]string{"username": account.Profile.Email})
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("profile", string(profile))
	if err := s.dir.SetAccountInfo(ctx, s.tenant, account.UID, params); err != nil {
		return fmt.Errorf("sync username: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, action string, event Event, account directory.Account) {
	entry := audit.NewEntry(action)
	entry.Email = account.Profile.Email
	entry.UID = account.UID
	entry.Tenant = account.Tenant
	entry.RequestID = event.RequestID
	entry.Detail = event.Type
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", "error", err)
	}
}

func (s *Service) notify(ctx context.Context, topic string, account directory.Account) error {
	payload, err := json.Marshal(map[string]string{
		"uid":    account.UID,
		"email":  account.Profile.Email,
		"tenant": account.Tenant,
	})
	if err != nil {
		return err
	}
	if err := s.notifier.Publish(ctx, topic, []byte(account.UID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
