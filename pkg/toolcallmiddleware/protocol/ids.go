package protocol

import "github.com/google/uuid"

// NewToolCallID mints a short opaque id for a newly recognised tool call,
// truncated the way other_examples' epheien-llm-api-relay relay does it so
// ids stay readable in logs without needing the full UUID.
func NewToolCallID() string {
	return uuid.New().String()[:12]
}
