package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
)

// ProgressFunc observes aggregation progress. It is invoked synchronously
// by the aggregator; the last event wins, no history is retained.
type ProgressFunc func(p domain.ExportProgress)

// HistoryConfig holds pagination settings for the aggregator.
type HistoryConfig struct {
	PageSize  int
	PageDelay time.Duration
}

// HistoryService aggregates a contact's full cross-channel conversation
// history from the CRM API: conversations, then every conversation's
// messages, then transcriptions for completed calls.
type HistoryService struct {
	caller    Caller
	logger    *logger.Logger
	pageSize  int
	pageDelay time.Duration
}

// NewHistoryService creates a new history aggregator.
// Parameters:
//   - caller: authenticated CRM call capability.
//   - cfg: pagination settings; zero values fall back to defaults.
//   - log: logger instance.
// Returns:
//   - *HistoryService: initialized aggregator.
func NewHistoryService(caller Caller, cfg *HistoryConfig, log *logger.Logger) *HistoryService {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &HistoryService{
		caller:    caller,
		logger:    log,
		pageSize:  pageSize,
		pageDelay: cfg.PageDelay,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *HistoryService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// FetchContactHistory runs the three aggregation stages for one contact
// and returns the merged message sequence, sorted ascending by timestamp
// with fetch order preserved on ties. Any error in the conversation or
// message stages, or any non-"not found" transcription error, aborts the
// whole aggregation; there is no partial success.
func (s *HistoryService) FetchContactHistory(ctx context.Context, locationID, contactID string, observer ProgressFunc) ([]domain.Message, error) {
	if observer == nil {
		observer = func(domain.ExportProgress) {}
	}

	observer(domain.ExportProgress{Phase: domain.PhaseStarting})

	// Stage 1: conversation list
	conversations, err := s.fetchConversations(ctx, locationID, contactID, observer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	s.log(ctx).WithField(logger.FieldCount, len(conversations)).Info("Fetched conversations")

	// Stage 2: messages per conversation
	var messages []domain.Message
	for i, conv := range conversations {
		convMessages, err := s.fetchConversationMessages(ctx, locationID, conv.ID, func(total int) {
			observer(domain.ExportProgress{
				Phase:                  domain.PhaseFetchingMessages,
				TotalConversations:     len(conversations),
				CompletedConversations: i,
				TotalMessages:          len(messages) + total,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages for conversation %s: %w", conv.ID, err)
		}

		messages = append(messages, convMessages...)
		observer(domain.ExportProgress{
			Phase:                  domain.PhaseFetchingMessages,
			TotalConversations:     len(conversations),
			CompletedConversations: i + 1,
			TotalMessages:          len(messages),
		})

		// Same rate-limit discipline between conversations as between pages
		if err := sleepContext(ctx, s.pageDelay); err != nil {
			return nil, err
		}
	}

	// Stage 3: transcriptions for completed calls
	if err := s.fetchTranscriptions(ctx, locationID, messages, observer); err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(a, b int) bool {
		return messages[a].DateAdded.Before(messages[b].DateAdded)
	})

	return messages, nil
}

type conversationEnvelope struct {
	Conversations json.RawMessage `json:"conversations"`
}

type upstreamConversation struct {
	ID              string `json:"id"`
	LastMessageDate string `json:"lastMessageDate"`
}

// fetchConversations pages through the contact's conversation list. The
// next cursor is derived from the last item's id.
func (s *HistoryService) fetchConversations(ctx context.Context, locationID, contactID string, observer ProgressFunc) ([]domain.Conversation, error) {
	count := 0
	return FetchAllPages(ctx, func(ctx context.Context, cursor string) ([]domain.Conversation, string, error) {
		endpoint := fmt.Sprintf("/conversations/search?contactId=%s&limit=%d", url.QueryEscape(contactID), s.pageSize)
		if cursor != "" {
			endpoint += "&startAfterId=" + url.QueryEscape(cursor)
		}

		data, err := s.caller.Call(ctx, locationID, "GET", endpoint, nil)
		if err != nil {
			return nil, "", err
		}

		var env conversationEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log(ctx).WithError(err).Warn("Unexpected conversation search response shape, treating as empty page")
			return nil, "", nil
		}

		var raw []upstreamConversation
		if len(env.Conversations) > 0 {
			if err := json.Unmarshal(env.Conversations, &raw); err != nil {
				s.log(ctx).WithError(err).Warn("Conversation list is not an array, treating as empty page")
				return nil, "", nil
			}
		}

		items := make([]domain.Conversation, 0, len(raw))
		for _, c := range raw {
			items = append(items, domain.Conversation{ID: c.ID, LastMessageDate: c.LastMessageDate})
		}

		next := ""
		if len(items) > 0 {
			next = items[len(items)-1].ID
		}

		count += len(items)
		// Emit after every page, empty ones included, so callers see the
		// fetch is alive even when the contact has no conversations.
		observer(domain.ExportProgress{Phase: domain.PhaseConversations, ConversationCount: count})

		return items, next, nil
	}, s.pageDelay)
}

type messagesEnvelope struct {
	Messages struct {
		LastMessageID string          `json:"lastMessageId"`
		NextPage      bool            `json:"nextPage"`
		Messages      json.RawMessage `json:"messages"`
	} `json:"messages"`
}

type upstreamMessage struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Type           string            `json:"type"`
	MessageType    string            `json:"messageType"`
	Direction      string            `json:"direction"`
	DateAdded      string            `json:"dateAdded"`
	Body           string            `json:"body"`
	Subject        string            `json:"subject"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	CallDuration   int               `json:"callDuration"`
	CallStatus     string            `json:"callStatus"`
	Attachments    []json.RawMessage `json:"attachments"`
}

// fetchConversationMessages pages through one conversation's messages. The
// next cursor comes from a dedicated field in the response envelope. The
// upstream's nextPage flag is advisory only; termination relies on the
// empty-batch and unchanged-cursor guards.
func (s *HistoryService) fetchConversationMessages(ctx context.Context, locationID, conversationID string, onPage func(total int)) ([]domain.Message, error) {
	total := 0
	return FetchAllPages(ctx, func(ctx context.Context, cursor string) ([]domain.Message, string, error) {
		endpoint := fmt.Sprintf("/conversations/%s/messages?limit=%d", url.PathEscape(conversationID), s.pageSize)
		if cursor != "" {
			endpoint += "&lastMessageId=" + url.QueryEscape(cursor)
		}

		data, err := s.caller.Call(ctx, locationID, "GET", endpoint, nil)
		if err != nil {
			return nil, "", err
		}

		var env messagesEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log(ctx).WithError(err).Warn("Unexpected message list response shape, treating as empty page")
			return nil, "", nil
		}

		var raw []upstreamMessage
		if len(env.Messages.Messages) > 0 {
			if err := json.Unmarshal(env.Messages.Messages, &raw); err != nil {
				s.log(ctx).WithError(err).Warn("Message list is not an array, treating as empty page")
				return nil, "", nil
			}
		}

		items := make([]domain.Message, 0, len(raw))
		for _, m := range raw {
			items = append(items, normalizeMessage(conversationID, m))
		}

		total += len(items)
		if len(items) > 0 {
			onPage(total)
		}

		return items, env.Messages.LastMessageID, nil
	}, s.pageDelay)
}

// normalizeMessage maps an upstream message payload onto the domain model.
func normalizeMessage(conversationID string, m upstreamMessage) domain.Message {
	msgType := m.Type
	if msgType == "" {
		// A handful of endpoints report the code under messageType instead
		msgType = m.MessageType
	}

	msg := domain.Message{
		ID:             m.ID,
		ConversationID: conversationID,
		Type:           msgType,
		Direction:      strings.ToLower(m.Direction),
		Body:           m.Body,
		Subject:        m.Subject,
		From:           m.From,
		To:             m.To,
		CallDuration:   m.CallDuration,
		CallStatus:     m.CallStatus,
	}
	if m.ConversationID != "" {
		msg.ConversationID = m.ConversationID
	}

	if t, err := time.Parse(time.RFC3339, m.DateAdded); err == nil {
		msg.DateAdded = t
	}

	for _, raw := range m.Attachments {
		msg.Attachments = append(msg.Attachments, decodeAttachment(raw))
	}

	return msg
}

// decodeAttachment tolerates both bare URL strings and object payloads.
func decodeAttachment(raw json.RawMessage) domain.Attachment {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.Attachment{URL: s}
	}

	var obj struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return domain.Attachment{Name: obj.Name, URL: obj.URL}
	}

	return domain.Attachment{}
}

type transcriptSegment struct {
	Transcript string `json:"transcript"`
}

// fetchTranscriptions issues a single lookup per completed call message
// and attaches the transcript in place. A 404 or 422 means no transcript
// exists for that call; the message is kept without one. Any other error
// aborts the aggregation.
func (s *HistoryService) fetchTranscriptions(ctx context.Context, locationID string, messages []domain.Message, observer ProgressFunc) error {
	var candidates []int
	for i := range messages {
		if messages[i].IsCompletedCall() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	for done, idx := range candidates {
		endpoint := fmt.Sprintf("/locations/%s/messages/%s/transcription",
			url.PathEscape(locationID), url.PathEscape(messages[idx].ID))

		data, err := s.caller.Call(ctx, locationID, "GET", endpoint, nil)
		switch {
		case err == nil:
			messages[idx].Transcription = decodeTranscript(data)
		case IsNotFound(err) || IsUnprocessable(err):
			// No transcript exists for this call; keep the message as-is
		default:
			return fmt.Errorf("failed to fetch transcription for message %s: %w", messages[idx].ID, err)
		}

		observer(domain.ExportProgress{
			Phase:                   domain.PhaseTranscriptions,
			TotalTranscriptions:     len(candidates),
			CompletedTranscriptions: done + 1,
		})

		if err := sleepContext(ctx, s.pageDelay); err != nil {
			return err
		}
	}

	return nil
}

// decodeTranscript joins the upstream's sentence segments into one text.
// An unexpected shape degrades to an absent transcript.
func decodeTranscript(data []byte) string {
	var segments []transcriptSegment
	if err := json.Unmarshal(data, &segments); err != nil {
		return ""
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Transcript != "" {
			parts = append(parts, seg.Transcript)
		}
	}
	return strings.Join(parts, " ")
}
