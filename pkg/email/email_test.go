package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	valid := email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyHTML: "<p>x</p>"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *email.SendEmailParams)
		msg    string
	}{
		{"empty recipient", func(p *email.SendEmailParams) { p.SendTo = " " }, "SendTo is required"},
		{"malformed recipient", func(p *email.SendEmailParams) { p.SendTo = "user@" }, "valid email address"},
		{"display name", func(p *email.SendEmailParams) { p.SendTo = "User <user@example.com>" }, "valid email address"},
		{"empty subject", func(p *email.SendEmailParams) { p.Subject = "" }, "Subject is required"},
		{"empty body", func(p *email.SendEmailParams) { p.BodyHTML = "" }, "BodyHTML is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := valid
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDevSender(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)

	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "support@example.com",
		Subject:  "Order O1",
		BodyHTML: "<p>needs attention</p>",
		Tag:      "needs_verification",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var metaFile string
	for _, e := range entries {
		assert.Contains(t, e.Name(), "needs_verification")
		if strings.HasSuffix(e.Name(), ".json") {
			metaFile = e.Name()
		}
	}
	require.NotEmpty(t, metaFile)

	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "support@example.com", meta["send_to"])

	body, err := os.ReadFile(filepath.Join(dir, meta["body_file"].(string)))
	require.NoError(t, err)
	assert.Equal(t, "<p>needs attention</p>", string(body))
}

func TestDevSender_InvalidParams(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "mail")

	err := email.NewDevSender(dir).SendEmail(context.Background(), email.SendEmailParams{})
	assert.ErrorIs(t, err, email.ErrInvalidParams)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	t.Run("dev sender without token", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{DevDir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &email.DevSender{}, s)
	})

	t.Run("postmark with token", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{
			PostmarkServerToken: "server",
			SenderEmail:         "billing@example.com",
			SupportEmail:        "support@example.com",
		})
		require.NoError(t, err)
		assert.NotNil(t, s)
	})

	t.Run("invalid sender address", func(t *testing.T) {
		t.Parallel()
		_, err := email.NewPostmarkClient(email.Config{PostmarkServerToken: "server", SenderEmail: "nope"})
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})

	t.Run("must panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { email.MustNewPostmarkClient(email.Config{}) })
	})
}
