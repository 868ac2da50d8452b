package sms

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/olimtoy/olimtoy/internal/identity"
)

// MaxSupportMessage caps the message body in runes.
const MaxSupportMessage = 1000

// SupportMessage is a contact request from the help form.
type SupportMessage struct {
	Name          string
	ContactNumber string
	Message       string
}

// SupportSender delivers help requests to the support team.
type SupportSender interface {
	SendSupportMessage(ctx context.Context, msg SupportMessage) error
}

// Validate trims every field and requires all three. The contact number is only normalized,
// support accepts numbers from any country.
func (m SupportMessage) Validate() (SupportMessage, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.ContactNumber = identity.NormalizeContactNumber(m.ContactNumber)
	m.Message = strings.TrimSpace(m.Message)
	switch {
	case m.Name == "":
		return m, &identity.ValidationError{Field: "name", Message: "name is required"}
	case strings.TrimPrefix(m.ContactNumber, "+") == "":
		return m, &identity.ValidationError{Field: "contactNumber", Message: "contact number is required"}
	case m.Message == "":
		return m, &identity.ValidationError{Field: "message", Message: "message is required"}
	case utf8.RuneCountInString(m.Message) > MaxSupportMessage:
		return m, &identity.ValidationError{Field: "message", Message: fmt.Sprintf("message must be at most %d characters", MaxSupportMessage)}
	}
	return m, nil
}

func (s *LogSender) SendSupportMessage(ctx context.Context, msg SupportMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := msg.Validate()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.support = append(s.support, msg)
	s.mu.Unlock()
	log.Printf("sms: support message from %s (%s), %d chars", msg.Name, mask(msg.ContactNumber), utf8.RuneCountInString(msg.Message))
	return nil
}

// SupportMessages returns every help request delivered so far.
func (s *LogSender) SupportMessages() []SupportMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SupportMessage, len(s.support))
	copy(out, s.support)
	return out
}
