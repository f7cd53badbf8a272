package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStoreRecord(t *testing.T) {
	store := NewMemoryStore()

	entry := NewEntry(ActionLiteRegistration)
	entry.Email = "jane@example.com"
	entry.UID = "uid-1"

	if err := store.Record(context.Background(), entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entries := store.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Email != "jane@example.com" {
		t.Errorf("email = %q, want jane@example.com", entries[0].Email)
	}
	if entries[0].ID == uuid.Nil {
		t.Error("entry ID not stamped")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("entry timestamp not stamped")
	}
}

func TestMemoryStoreConcurrentRecord(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Record(context.Background(), NewEntry(ActionWebhookEvent))
		}()
	}
	wg.Wait()

	if got := len(store.Entries()); got != 50 {
		t.Fatalf("got %d entries, want 50", got)
	}
}
