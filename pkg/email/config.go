package email

// Config selects the sender. Without a Postmark server token, messages are
// written to DevDir instead of being sent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"EMAIL_SENDER" envDefault:"billing@localhost.localdomain"`
	SupportEmail         string `env:"EMAIL_SUPPORT" envDefault:"support@localhost.localdomain"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:".mail"`
}

// NewSender returns a Postmark client when a server token is configured and a
// DevSender otherwise.
func NewSender(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return NewDevSender(cfg.DevDir), nil
	}
	return NewPostmarkClient(cfg)
}
