package export

import (
	"fmt"
	"strings"

	"github.com/calin/convohist/internal/domain"
)

const typePrefix = "TYPE_"

// ChannelLabel maps an upstream message type code to a human channel
// label. Unrecognized codes are humanized from the code itself; an empty
// code falls back to a generic label.
func ChannelLabel(msgType string) string {
	switch msgType {
	case domain.TypeSMS:
		return "SMS"
	case domain.TypeEmail:
		return "Email"
	case domain.TypeCall:
		return "Call"
	case domain.TypeWhatsApp:
		return "WhatsApp"
	case domain.TypeFacebook:
		return "Facebook"
	case domain.TypeInstagram:
		return "Instagram"
	case domain.TypeLiveChat:
		return "Live Chat"
	case domain.TypeOther:
		return "Other"
	case "":
		return "Message"
	}
	return humanize(strings.TrimPrefix(msgType, typePrefix))
}

// humanize turns an UPPER_SNAKE code into a title-cased label.
func humanize(code string) string {
	words := strings.Split(strings.ToLower(code), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

// AttachmentName derives a display name for an attachment: its name field,
// the URL's trailing path segment, or a positional fallback.
func AttachmentName(a domain.Attachment, index int) string {
	if a.Name != "" {
		return a.Name
	}
	if a.URL != "" {
		trimmed := strings.TrimSuffix(a.URL, "/")
		if idx := strings.LastIndex(trimmed, "/"); idx != -1 && idx+1 < len(trimmed) {
			if seg := trimmed[idx+1:]; seg != "" {
				// Drop any query string from the segment
				if q := strings.Index(seg, "?"); q != -1 {
					seg = seg[:q]
				}
				if seg != "" {
					return seg
				}
			}
		}
		return a.URL
	}
	return fmt.Sprintf("Attachment %d", index+1)
}

// DistinctChannels returns the channel labels present in the sequence, in
// first-seen order, deduplicated.
func DistinctChannels(messages []domain.Message) []string {
	seen := make(map[string]struct{})
	channels := make([]string, 0, 4)
	for _, m := range messages {
		label := ChannelLabel(m.Type)
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		channels = append(channels, label)
	}
	return channels
}
