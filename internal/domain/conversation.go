package domain

// Conversation is an upstream grouping of messages exchanged with one
// contact over one channel thread. It only drives the per-conversation
// message fetch and is discarded once its messages are retrieved.
type Conversation struct {
	ID              string `json:"id"`
	LastMessageDate string `json:"lastMessageDate,omitempty"`
}
