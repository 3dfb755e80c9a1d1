package app

import (
	"strings"

	"github.com/charlesng35/reviewhub/pkg/mail"
)

const (
	EmailTransportSMTP  = "smtp"
	EmailTransportQueue = "queue"
)

// TransportName returns the configured transport, defaulting to SMTP.
func (c EmailConfig) TransportName() string {
	switch strings.ToLower(strings.TrimSpace(c.Transport)) {
	case EmailTransportQueue, "amqp":
		return EmailTransportQueue
	default:
		return EmailTransportSMTP
	}
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// QueueSettings converts EmailConfig to the AMQP mailer representation.
// The sender address falls back to the SMTP from address.
func (c EmailConfig) QueueSettings() mail.QueueSettings {
	from := c.Queue.From
	if strings.TrimSpace(from) == "" {
		from = c.SMTP.From
	}
	return mail.QueueSettings{
		URL:        c.Queue.URL,
		Exchange:   c.Queue.Exchange,
		RoutingKey: c.Queue.RoutingKey,
		From:       from,
	}
}
