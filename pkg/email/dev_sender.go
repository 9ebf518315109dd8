package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DevSender writes messages to disk instead of sending them.
type DevSender struct {
	dir string
	now func() time.Time
}

// NewDevSender creates dir on first send.
func NewDevSender(dir string) *DevSender {
	return &DevSender{dir: dir, now: time.Now}
}

type devMessage struct {
	Timestamp time.Time `json:"timestamp"`
	SendTo    string    `json:"send_to"`
	Subject   string    `json:"subject"`
	Tag       string    `json:"tag,omitempty"`
	BodyFile  string    `json:"body_file"`
}

// SendEmail stores <timestamp>_<tag or subject>.html and a .json sidecar.
func (d *DevSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	name := params.Tag
	if name == "" {
		name = params.Subject
	}
	base := now.Format("2006_01_02_150405.000000") + "_" + sanitizeFilename(name)

	body := base + ".html"
	if err := os.WriteFile(filepath.Join(d.dir, body), []byte(params.BodyHTML), 0o644); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrFailedToSendEmail, err)
	}

	meta, err := json.MarshalIndent(devMessage{
		Timestamp: now.UTC(),
		SendTo:    params.SendTo,
		Subject:   params.Subject,
		Tag:       params.Tag,
		BodyFile:  body,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return fmt.Errorf("%w: write metadata: %v", ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^a-z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
	s = unsafeFilename.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	if s == "" {
		return "email"
	}
	return s
}
