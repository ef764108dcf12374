package notify

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/escuelademusica/liquidaciones/internal/logger"
)

const whatsAppSend = "https://web.whatsapp.com/send"

// PhoneDigits strips everything but digits from a phone number.
func PhoneDigits(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}

// WhatsAppLink returns the click-to-chat URL that opens a chat with phone
// and pre-fills text. It returns "" when phone has no digits.
func WhatsAppLink(phone, text string) string {
	digits := PhoneDigits(phone)
	if digits == "" {
		return ""
	}
	return whatsAppSend + "?phone=" + digits + "&text=" + quote(text)
}

// quote percent-encodes s with %20 for spaces.
func quote(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// LogDispatcher writes the WhatsApp link of every message to the log
// instead of sending it. An operator opens the links by hand.
type LogDispatcher struct {
	Now func() time.Time
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{Now: time.Now}
}

// Send logs the link. Recipients without a phone number fail.
func (d *LogDispatcher) Send(ctx context.Context, to Recipient, message string, s *Session) (*Session, bool) {
	if s == nil {
		s = &Session{ID: uuid.New(), Started: d.Now()}
	}
	link := WhatsAppLink(to.Phone, message)
	if link == "" {
		logger.LogWarn("invalid phone number", "session", s.ID, "name", to.Name, "phone", to.Phone)
		return s, false
	}
	s.Sent++
	logger.LogInfo("whatsapp message ready", "session", s.ID, "name", to.Name, "link", link)
	return s, true
}
