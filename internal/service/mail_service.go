package service

import (
	"context"
	"fmt"

	"github.com/ghclone/ghclone/internal/config"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const otpSubject = "Verify your email for Github Clone"

type Message struct {
	To      string
	Subject string
	OTP     string
	HTML    string
}

// NewOTPMessage builds the verification email for otp.
func NewOTPMessage(to, otp string) Message {
	return Message{
		To:      to,
		Subject: otpSubject,
		OTP:     otp,
		HTML:    "Your OTP is <b>" + otp + "</b>. Please use this to verify your email.",
	}
}

// Notifier delivers verification codes out of band.
type Notifier interface {
	SendOTP(ctx context.Context, msg Message) error
}

type SMTPNotifier struct {
	dialer      *gomail.Dialer
	fromAddress string
	fromName    string
	logger      *logrus.Logger
}

func NewSMTPNotifier(cfg *config.SMTPConfig, logger *logrus.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		dialer:      gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		fromAddress: cfg.User,
		fromName:    cfg.FromName,
		logger:      logger,
	}
}

// SendOTP dials the SMTP server for every message. gomail has no context
// support, so a cancelled ctx abandons the send and reports failure. The
// abandoned send keeps running: gomail bounds only the dial (10s), and the
// rest of the conversation is bounded by the server. Its outcome is logged.
func (n *SMTPNotifier) SendOTP(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", n.fromAddress, n.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	done := make(chan error, 1)
	go func() {
		done <- n.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			n.logger.WithError(err).WithField("email_hash", utils.HashEmail(msg.To)).Error("Failed to send OTP email")
			return fmt.Errorf("%w: %w", models.ErrDelivery, err)
		}
	case <-ctx.Done():
		go n.logAbandoned(done, msg.To)
		return fmt.Errorf("%w: %w", models.ErrDelivery, ctx.Err())
	}

	n.logger.WithField("email_hash", utils.HashEmail(msg.To)).Info("OTP email sent")
	return nil
}

// logAbandoned waits for a send whose caller gave up. A delivered message
// carries a code that was never stored, so it is logged as a warning.
func (n *SMTPNotifier) logAbandoned(done <-chan error, to string) {
	entry := n.logger.WithField("email_hash", utils.HashEmail(to))
	if err := <-done; err != nil {
		entry.WithError(err).Warn("Abandoned OTP email was not sent")
		return
	}
	entry.Warn("OTP email delivered after its request was abandoned")
}

// LogNotifier writes codes to the log instead of sending them. Development only.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOTP(_ context.Context, msg Message) error {
	n.logger.WithFields(logrus.Fields{
		"to":  msg.To,
		"otp": msg.OTP,
	}).Info("OTP generated (logged for development)")
	return nil
}
