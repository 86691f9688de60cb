package email

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	msgs []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.msgs = append(d.msgs, m...)
	return d.err
}

func TestSMTPSender(t *testing.T) {
	d := &fakeDialer{}
	s := NewSMTPSenderWithDialer(d, "")
	require.NoError(t, s.Send(context.Background(), "owner@salon.example", "New booking", "Anna at 10:00"))
	require.Len(t, d.msgs, 1)
	assert.Equal(t, []string{"no-reply@salonbook.local"}, d.msgs[0].GetHeader("From"))
	assert.Equal(t, []string{"owner@salon.example"}, d.msgs[0].GetHeader("To"))
	assert.Equal(t, []string{"New booking"}, d.msgs[0].GetHeader("Subject"))

	d.err = errors.New("connection refused")
	assert.ErrorContains(t, s.Send(context.Background(), "owner@salon.example", "x", "y"), "connection refused")
}

type fakeSendGrid struct {
	sent   []*mail.SGMailV3
	status int
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	return &rest.Response{StatusCode: f.status, Body: `{"errors":[{"message":"bad key"}]}`}, nil
}

func TestSendGridSender(t *testing.T) {
	c := &fakeSendGrid{status: 202}
	s := NewSendGridSenderWithClient(c, "Salon", "bookings@salon.example")
	require.NoError(t, s.Send(context.Background(), "owner@salon.example", "New booking", "Anna at 10:00"))
	require.Len(t, c.sent, 1)
	m := c.sent[0]
	assert.Equal(t, "bookings@salon.example", m.From.Address)
	assert.Equal(t, "New booking", m.Subject)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "owner@salon.example", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)

	c.status = 401
	assert.ErrorContains(t, s.Send(context.Background(), "owner@salon.example", "x", "y"), "status 401")
	assert.Equal(t, "sendgrid", s.ProviderID())
}
