// Package mailer delivers rendered notifications to e-mail recipients.
package mailer

import (
	"context"
)

// Transport delivers one rendered message to a set of addresses.
// Every failure it reports wraps domain.ErrTransport.
type Transport interface {
	Send(ctx context.Context, recipients []string, subject, body string) error
}

// Message is the JSON body the webhook relay receives.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}
