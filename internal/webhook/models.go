package webhook

// Envelope is the webhook request body: a batch of account events.
type Envelope struct {
	Events    []Event `json:"events"`
	Nonce     string  `json:"nonce"`
	Timestamp int64   `json:"timestamp"`
}

// Event is one account event inside an envelope.
type Event struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData carries the account identifiers for an event.
type EventData struct {
	UID string `json:"uid"`
	// NewUID is present on merge events and names the surviving account.
	NewUID string `json:"newUid"`
}
