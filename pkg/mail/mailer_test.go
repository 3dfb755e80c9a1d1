package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from   string
	rcpts  []string
	data   bytes.Buffer
	quit   bool
	rcptFn func(string) error
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (f *fakeSMTPClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error {
	if f.rcptFn != nil {
		if err := f.rcptFn(to); err != nil {
			return err
		}
	}
	f.rcpts = append(f.rcpts, to)
	return nil
}
func (f *fakeSMTPClient) Data() (io.WriteCloser, error)   { return nopWriteCloser{&f.data}, nil }
func (f *fakeSMTPClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                    { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return true, "" }

func newFakeMailer(t *testing.T, client *fakeSMTPClient) *smtpMailer {
	t.Helper()
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@reviewhub.test",
	})
	require.NoError(t, err)

	sm := mailer.(*smtpMailer)
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		local, remote := net.Pipe()
		t.Cleanup(func() { _ = remote.Close() })
		return local, client, nil
	}
	sm.authFn = func(smtpClient, SMTPSettings) error { return nil }
	sm.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"owner@example.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 465, UseTLS: true})
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, mailer.(*smtpMailer).cfg.Timeout)
}

func TestSMTPMailerSendDeliversMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"owner@my-shop.co.il", " OWNER@my-shop.co.il "},
		Subject: "Your code",
		Body:    "123456",
	})
	require.NoError(t, err)

	require.Equal(t, "no-reply@reviewhub.test", client.from)
	require.Equal(t, []string{"owner@my-shop.co.il"}, client.rcpts)
	require.True(t, client.quit)
	require.Contains(t, client.data.String(), "Subject: Your code")
	require.Contains(t, client.data.String(), "Message-ID: <")
	require.True(t, strings.HasSuffix(client.data.String(), "\r\n123456"))
}

func TestSMTPMailerSendSurfacesRecipientRejection(t *testing.T) {
	client := &fakeSMTPClient{rcptFn: func(string) error { return errors.New("550 mailbox unavailable") }}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{To: []string{"owner@example.com"}})
	require.ErrorContains(t, err, "rcpt to owner@example.com")
	require.False(t, client.quit)
}

func TestSMTPMailerSendHonoursCancelledContext(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Send(ctx, Message{To: []string{"owner@example.com"}})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, client.from)
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	err = mailer.Send(context.Background(), Message{To: []string{"owner@example.com"}})
	require.ErrorContains(t, err, "sender address is required")

	err = mailer.Send(context.Background(), Message{From: "invalid-from", To: []string{"owner@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{From: "a@example.com", To: []string{"owner@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")
}

func TestFormatMessage(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	content := formatMessage("from@example.com", []string{"to@example.com"}, "Subject\r\nBreak", "Body", sentAt)

	require.Contains(t, content, "From: from@example.com")
	require.Contains(t, content, "Subject: Subject  Break")
	require.Contains(t, content, "Date: Sun, 01 Mar 2026 12:00:00 +0000")
	require.Contains(t, content, "@example.com>")
	require.True(t, strings.HasSuffix(content, "Body"))
}
