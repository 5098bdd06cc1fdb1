package mqtt

import (
	"encoding/json"
	"time"
)

// Status values and reasons carried on an instance's status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonUnexpected = "unexpected_disconnect"
)

// Status is the retained message on catalogdb/<instance>/status.
type Status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// statusPayload encodes a Status stamped now, in UTC.
func statusPayload(status, clientID, reason string) []byte {
	data, _ := json.Marshal(Status{ //nolint:errchkjson // Strings only
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}
