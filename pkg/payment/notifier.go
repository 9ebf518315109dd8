package payment

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/email"
	"github.com/dmitrymomot/licensekit/pkg/license"
)

// IncidentKind classifies orders that need a human.
type IncidentKind string

const (
	IncidentPersistenceFailure IncidentKind = "license_persistence_failure"
	IncidentNeedsVerification  IncidentKind = "needs_verification"
	IncidentCaptureFailed      IncidentKind = "capture_failed"
)

// Incident is sent to support when an order leaves the happy path.
type Incident struct {
	Kind     IncidentKind
	OrderID  string
	UserID   string
	PlanType license.Type
	Amount   license.Money
	Err      error
	At       time.Time
}

// Notifier delivers incidents to support.
type Notifier interface {
	Notify(ctx context.Context, in Incident) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, in Incident) error

func (f NotifierFunc) Notify(ctx context.Context, in Incident) error { return f(ctx, in) }

// EmailNotifier mails incidents to a support address.
type EmailNotifier struct {
	sender email.EmailSender
	to     string
}

// NewEmailNotifier panics if sender is nil.
func NewEmailNotifier(sender email.EmailSender, to string) *EmailNotifier {
	if sender == nil {
		panic("payment: email sender is required")
	}
	return &EmailNotifier{sender: sender, to: to}
}

func (n *EmailNotifier) Notify(ctx context.Context, in Incident) error {
	var body strings.Builder
	fmt.Fprintf(&body, "<p>Order <b>%s</b> needs attention: %s.</p><ul>", html.EscapeString(in.OrderID), in.Kind)
	fmt.Fprintf(&body, "<li>User: %s</li>", html.EscapeString(in.UserID))
	fmt.Fprintf(&body, "<li>Plan: %s</li>", html.EscapeString(string(in.PlanType)))
	fmt.Fprintf(&body, "<li>Amount: %s</li>", html.EscapeString(in.Amount.String()))
	fmt.Fprintf(&body, "<li>At: %s</li>", in.At.UTC().Format(time.RFC3339))
	if in.Err != nil {
		fmt.Fprintf(&body, "<li>Error: %s</li>", html.EscapeString(in.Err.Error()))
	}
	body.WriteString("</ul>")

	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   n.to,
		Subject:  fmt.Sprintf("[licensekit] %s: order %s", in.Kind, in.OrderID),
		BodyHTML: body.String(),
		Tag:      string(in.Kind),
	})
}
