package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrMailDisabled is returned when no provider credentials are configured.
var ErrMailDisabled = errors.New("email delivery is not configured")

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type MailjetSender struct {
	client    *mailjet.Client
	fromEmail string
	fromName  string
}

func NewMailjetSender(cfg config.MailConfig) *MailjetSender {
	client := mailjet.NewMailjetClient(cfg.APIKey, cfg.APISecret)
	client.SetClient(&http.Client{Timeout: cfg.Timeout})
	return &MailjetSender{
		client:    client,
		fromEmail: cfg.SenderEmail,
		fromName:  cfg.SenderName,
	}
}

// SetBaseURL points the sender at another Mailjet-compatible endpoint.
func (s *MailjetSender) SetBaseURL(baseURL string) {
	s.client.SetBaseURL(baseURL)
}

func (s *MailjetSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{
			{
				From: &mailjet.RecipientV31{
					Email: s.fromEmail,
					Name:  s.fromName,
				},
				To: &mailjet.RecipientsV31{
					mailjet.RecipientV31{Email: msg.To},
				},
				Subject:  msg.Subject,
				TextPart: msg.Text,
				HTMLPart: msg.HTML,
			},
		},
	}

	if _, err := s.client.SendMailV31(&messages, mailjet.WithContext(ctx)); err != nil {
		return fmt.Errorf("mailjet send: %w", err)
	}
	return nil
}

// BreakerSender stops calling the provider after repeated failures and
// retries it once the open period has passed.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerSender(next Sender, failureThreshold uint32, openTimeout time.Duration) *BreakerSender {
	settings := gobreaker.Settings{
		Name:        "mail",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}
	return &BreakerSender{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, msg)
	})
	return err
}

func (s *BreakerSender) State() string {
	return s.breaker.State().String()
}

// DisabledSender is used when mail credentials are absent.
type DisabledSender struct{}

func (DisabledSender) Send(context.Context, Message) error {
	return ErrMailDisabled
}

// NewSender builds the configured sender chain.
func NewSender(cfg *config.Config) Sender {
	if !cfg.MailEnabled() {
		logger.Warn("mail_disabled", map[string]interface{}{"reason": "missing mailjet credentials"})
		return DisabledSender{}
	}
	return NewBreakerSender(NewMailjetSender(cfg.Mail), 5, 30*time.Second)
}
