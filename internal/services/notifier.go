package services

import (
	"context"
	"html"
	"sync"
	"time"

	"github.com/booktalk/backend/pkg/logger"
)

// Notifier delivers emails in the background. Delivery is best effort:
// a full queue drops the message and failures are only logged.
type Notifier struct {
	sender  Sender
	timeout time.Duration
	queue   chan Message
	wg      sync.WaitGroup

	// mu guards closed and the sends into queue.
	mu     sync.Mutex
	closed bool
}

func NewNotifier(sender Sender, queueSize int, timeout time.Duration) *Notifier {
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := &Notifier{
		sender:  sender,
		timeout: timeout,
		queue:   make(chan Message, queueSize),
	}
	n.wg.Add(1)
	go n.processQueue()
	return n
}

// Enqueue reports whether the message was accepted.
func (n *Notifier) Enqueue(msg Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		logger.Warn("notification_after_close", map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
			"dropped": true,
		})
		return false
	}

	select {
	case n.queue <- msg:
		return true
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
			"dropped": true,
		})
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be sent or
// for ctx to expire.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) processQueue() {
	defer n.wg.Done()
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := n.sender.Send(ctx, msg)
		cancel()

		if err != nil {
			logger.Error("notification_send_failed", err, map[string]interface{}{
				"to":      msg.To,
				"subject": msg.Subject,
			})
			continue
		}
		logger.Info("notification_sent", map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
		})
	}
}

// DiscussionJoinedMessage is sent to a user after joining a discussion.
func DiscussionJoinedMessage(to, title string, date time.Time, meetingLink string) Message {
	when := date.UTC().Format("Monday, 2 January 2006 at 15:04 MST")
	return Message{
		To:      to,
		Subject: "You joined the discussion \"" + title + "\"",
		Text:    "You are now a participant of \"" + title + "\" on " + when + ". Meeting link: " + meetingLink,
		HTML: "<h3>You are now a participant of \"" + html.EscapeString(title) + "\".</h3>" +
			"<p>The discussion takes place on " + when + ".</p>" +
			"<p><a href=\"" + html.EscapeString(meetingLink) + "\">Join the meeting</a></p>",
	}
}

// DiscussionLeftMessage is sent to a user after leaving a discussion.
func DiscussionLeftMessage(to, title string) Message {
	return Message{
		To:      to,
		Subject: "You left the discussion \"" + title + "\"",
		Text:    "You are no longer a participant of \"" + title + "\".",
		HTML:    "<h3>You are no longer a participant of \"" + html.EscapeString(title) + "\".</h3>",
	}
}

// PasswordResetMessage carries the link a user follows to set a new password.
func PasswordResetMessage(to, link string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Reset your Book Talk password",
		Text:    "Use this link to choose a new password: " + link + " (valid for " + ttl.String() + ").",
		HTML: "<p>Use the link below to choose a new password. It is valid for " + ttl.String() + ".</p>" +
			"<p><a href=\"" + html.EscapeString(link) + "\">Reset password</a></p>",
	}
}
