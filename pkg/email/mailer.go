package email

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// EmailSender delivers a single message.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

// SendEmailParams represents the parameters for sending an email.
type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

// Validate checks the recipient address and that subject and body are set.
func (p SendEmailParams) Validate() error {
	var errs []error
	if strings.TrimSpace(p.SendTo) == "" {
		errs = append(errs, errors.New("SendTo is required"))
	} else if !validAddress(p.SendTo) {
		errs = append(errs, errors.New("SendTo must be a valid email address"))
	}
	if strings.TrimSpace(p.Subject) == "" {
		errs = append(errs, errors.New("Subject is required"))
	}
	if strings.TrimSpace(p.BodyHTML) == "" {
		errs = append(errs, errors.New("BodyHTML is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidParams}, errs...)...)
	}
	return nil
}

// validAddress accepts bare addresses only, not "Name <addr>".
func validAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}
