package domain

import "time"

// Message type codes as reported by the upstream CRM API.
const (
	TypeSMS       = "TYPE_SMS"
	TypeEmail     = "TYPE_EMAIL"
	TypeCall      = "TYPE_CALL"
	TypeWhatsApp  = "TYPE_WHATSAPP"
	TypeFacebook  = "TYPE_FACEBOOK"
	TypeInstagram = "TYPE_INSTAGRAM"
	TypeLiveChat  = "TYPE_LIVE_CHAT"
	TypeOther     = "TYPE_OTHER"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallStatusCompleted marks voice calls that may carry a transcription.
const CallStatusCompleted = "completed"

// Attachment references a file attached to a message. Upstream sometimes
// sends bare URLs and sometimes objects with a name, so either field may
// be empty.
type Attachment struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is a normalized record of one communication event. Messages are
// immutable once fetched; only Transcription is filled in afterwards for
// completed calls.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Type           string       `json:"type"`
	Direction      string       `json:"direction"`
	DateAdded      time.Time    `json:"dateAdded"`
	Body           string       `json:"body,omitempty"`
	Subject        string       `json:"subject,omitempty"`
	From           string       `json:"from,omitempty"`
	To             string       `json:"to,omitempty"`
	CallDuration   int          `json:"callDuration,omitempty"`
	CallStatus     string       `json:"callStatus,omitempty"`
	Transcription  string       `json:"transcription,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// IsCompletedCall reports whether the message is a finished voice call
// with a known direction, i.e. a transcription lookup candidate.
func (m *Message) IsCompletedCall() bool {
	return m.Type == TypeCall && m.CallStatus == CallStatusCompleted && m.Direction != ""
}
