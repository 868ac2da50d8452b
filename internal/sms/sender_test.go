package sms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olimtoy/olimtoy/internal/identity"
)

func TestLogSenderRecordsDeliveries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewLogSender()

	require.NoError(t, s.SendCode(ctx, CodeRequest{ContactNumber: "+998901234567", Code: "123456"}))
	require.NoError(t, s.SendCode(ctx, CodeRequest{ContactNumber: "+998901234567", Code: "123456", Resend: true}))
	require.ErrorIs(t, s.SendCode(ctx, CodeRequest{Code: "123456"}), ErrNoRecipient)

	sent := s.Sent()
	require.Len(t, sent, 2)
	require.True(t, sent[1].Resend)
}

func TestMask(t *testing.T) {
	t.Parallel()
	require.Equal(t, "+998*******67", mask("+998901234567"))
	require.Equal(t, "+99890", mask("+99890"))
}

func TestSupportMessageValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		msg   SupportMessage
		field string
	}{
		{name: "missing name", msg: SupportMessage{ContactNumber: "+998901234567", Message: "hi"}, field: "name"},
		{name: "missing phone", msg: SupportMessage{Name: "Aziza", ContactNumber: " + ", Message: "hi"}, field: "contactNumber"},
		{name: "missing message", msg: SupportMessage{Name: "Aziza", ContactNumber: "+998901234567", Message: "   "}, field: "message"},
		{name: "too long", msg: SupportMessage{Name: "Aziza", ContactNumber: "+998901234567", Message: strings.Repeat("a", MaxSupportMessage+1)}, field: "message"},
		{name: "ok", msg: SupportMessage{Name: " Aziza ", ContactNumber: "+998 90 123 45 67", Message: " help "}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.msg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				require.Equal(t, SupportMessage{Name: "Aziza", ContactNumber: "+998901234567", Message: "help"}, got)
				return
			}
			var verr *identity.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLogSenderSupportMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewLogSender()

	require.NoError(t, s.SendSupportMessage(ctx, SupportMessage{Name: "Aziza", ContactNumber: "+998901234567", Message: "the key does not show"}))
	require.Error(t, s.SendSupportMessage(ctx, SupportMessage{Name: "Aziza"}))

	got := s.SupportMessages()
	require.Len(t, got, 1)
	require.Equal(t, "the key does not show", got[0].Message)
	require.Empty(t, s.Sent())
}
