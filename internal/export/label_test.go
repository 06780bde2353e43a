package export

import (
	"testing"

	"github.com/calin/convohist/internal/domain"
)

func TestChannelLabel(t *testing.T) {
	tests := []struct {
		msgType string
		want    string
	}{
		{domain.TypeSMS, "SMS"},
		{domain.TypeEmail, "Email"},
		{domain.TypeCall, "Call"},
		{domain.TypeWhatsApp, "WhatsApp"},
		{domain.TypeLiveChat, "Live Chat"},
		{"TYPE_CUSTOM_CHANNEL", "Custom Channel"},
		{"TYPE_GMB", "Gmb"},
		{"", "Message"},
	}

	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			if got := ChannelLabel(tt.msgType); got != tt.want {
				t.Errorf("ChannelLabel(%q) = %q, want %q", tt.msgType, got, tt.want)
			}
		})
	}
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		name string
		att  domain.Attachment
		idx  int
		want string
	}{
		{"explicit name", domain.Attachment{Name: "invoice.pdf", URL: "https://x/y.png"}, 0, "invoice.pdf"},
		{"url segment", domain.Attachment{URL: "https://cdn.example.com/files/photo.jpg"}, 0, "photo.jpg"},
		{"url with query", domain.Attachment{URL: "https://cdn.example.com/files/doc.pdf?sig=abc"}, 0, "doc.pdf"},
		{"neither", domain.Attachment{}, 2, "Attachment 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AttachmentName(tt.att, tt.idx); got != tt.want {
				t.Errorf("AttachmentName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDistinctChannels(t *testing.T) {
	messages := []domain.Message{
		{Type: domain.TypeSMS},
		{Type: domain.TypeEmail},
		{Type: domain.TypeSMS},
		{Type: domain.TypeCall},
	}

	got := DistinctChannels(messages)
	want := []string{"SMS", "Email", "Call"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("channel %d = %q, want %q", i, got[i], want[i])
		}
	}

	if got := DistinctChannels(nil); len(got) != 0 {
		t.Errorf("DistinctChannels(nil) = %v, want empty", got)
	}
}
