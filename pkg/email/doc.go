// Package email sends transactional mail.
//
// EmailSender is implemented by the Postmark client for production and by
// DevSender, which writes each message to a directory as an .html body plus a
// .json metadata file. NewSender picks one from Config.
//
//	sender, err := email.NewSender(cfg)
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "support@example.com",
//		Subject:  "Order O1 needs attention",
//		BodyHTML: "<p>...</p>",
//	})
//
// Parameters are validated before anything is sent; failures match
// ErrInvalidParams or ErrFailedToSendEmail.
package email
