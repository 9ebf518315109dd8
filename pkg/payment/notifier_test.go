package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/email"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/payment"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, params email.SendEmailParams) error {
	return m.Called(ctx, params).Error(0)
}

func TestEmailNotifier(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("SendEmail", mock.Anything, mock.MatchedBy(func(p email.SendEmailParams) bool {
		return p.SendTo == "support@example.com" &&
			p.Tag == string(payment.IncidentPersistenceFailure) &&
			assert.ObjectsAreEqual("[licensekit] license_persistence_failure: order O1", p.Subject)
	})).Return(nil).Once()

	n := payment.NewEmailNotifier(sender, "support@example.com")
	err := n.Notify(context.Background(), payment.Incident{
		Kind:     payment.IncidentPersistenceFailure,
		OrderID:  "O1",
		UserID:   "<u1>",
		PlanType: license.TypeMonthly,
		Amount:   license.MustParseMoney("29.95", "USD"),
		Err:      errors.New("db down"),
		At:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	sender.AssertExpectations(t)

	params := sender.Calls[0].Arguments.Get(1).(email.SendEmailParams)
	assert.Contains(t, params.BodyHTML, "&lt;u1&gt;")
	assert.Contains(t, params.BodyHTML, "29.95 USD")
}
