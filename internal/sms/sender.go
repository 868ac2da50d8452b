// Package sms delivers verification codes and support messages. Only a log-backed sender
// exists; nothing leaves the machine.
package sms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Sender defines the delivery used by the onboarding flow.
type Sender interface {
	SendCode(ctx context.Context, req CodeRequest) error
}

type CodeRequest struct {
	ContactNumber string
	Code          string
	Resend        bool
}

var ErrNoRecipient = errors.New("sms: no recipient")

// LogSender writes each delivery to the standard logger and remembers it.
type LogSender struct {
	mu      sync.Mutex
	sent    []CodeRequest
	support []SupportMessage
}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) SendCode(ctx context.Context, req CodeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(req.ContactNumber) == "" {
		return ErrNoRecipient
	}
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	kind := "code"
	if req.Resend {
		kind = "resend"
	}
	log.Printf("sms: %s to %s", kind, mask(req.ContactNumber))
	return nil
}

// Sent returns every request delivered so far.
func (s *LogSender) Sent() []CodeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CodeRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

// mask keeps the country code and the last two digits.
func mask(number string) string {
	if len(number) <= 6 {
		return number
	}
	return fmt.Sprintf("%s%s%s", number[:4], strings.Repeat("*", len(number)-6), number[len(number)-2:])
}
