package mailer

import (
	"context"
	"errors"
	"testing"

	mail "github.com/go-mail/mail/v2"
	"github.com/stretchr/testify/require"

	"github.com/Florentin-artemix/Galileo-sub000/pkg/config"
)

type dialerStub struct {
	sent []*mail.Message
	err  error
}

func (d *dialerStub) DialAndSend(m ...*mail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestNewSMTPMailerDisabled(t *testing.T) {
	m, err := NewSMTPMailer(config.MailConfig{})
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = NewSMTPMailer(config.MailConfig{Enabled: true})
	require.Error(t, err)
}

func TestSMTPMailerSend(t *testing.T) {
	stub := &dialerStub{}
	m := &SMTPMailer{from: "noreply@example.org", dialer: stub}

	require.NoError(t, m.Send(context.Background(), Message{}))
	require.Empty(t, stub.sent)

	require.NoError(t, m.Send(context.Background(), Message{To: []string{"a@example.org"}, Subject: "hi", HTML: "<p>x</p>"}))
	require.Len(t, stub.sent, 1)
	require.Equal(t, []string{"a@example.org"}, stub.sent[0].GetHeader("To"))

	stub.err = errors.New("refused")
	require.Error(t, m.Send(context.Background(), Message{To: []string{"a@example.org"}}))
}
