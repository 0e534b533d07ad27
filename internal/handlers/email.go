package handlers

import (
	"context"
	"time"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultInviteSubject = "It would be wonderful to discuss this book together!"
	defaultInviteHTML    = "<h3>Hi! We’re excited to dive into our discussion. <br>Whether you’ve already started reading or are just about to pick it up, we’d love for you to join the conversation!</h3>"
	sendTimeout          = 15 * time.Second
)

type EmailHandler struct {
	Sender services.Sender
}

func NewEmailHandler(sender services.Sender) *EmailHandler {
	return &EmailHandler{Sender: sender}
}

type sendEmailRequest struct {
	ToEmail     string `json:"toEmail" validate:"required,email"`
	Subject     string `json:"subject"`
	TextContent string `json:"textContent"`
	HTMLContent string `json:"htmlContent"`
}

// Send delivers an invitation synchronously so provider failures reach the
// caller.
func (h *EmailHandler) Send(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	msg := services.Message{
		To:      req.ToEmail,
		Subject: req.Subject,
		Text:    req.TextContent,
		HTML:    req.HTMLContent,
	}
	if msg.Subject == "" {
		msg.Subject = defaultInviteSubject
	}
	if msg.HTML == "" {
		msg.HTML = defaultInviteHTML
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), sendTimeout)
	defer cancel()

	if err := h.Sender.Send(ctx, msg); err != nil {
		logger.Error("email_send_failed", err, map[string]interface{}{
			"to": req.ToEmail,
		})
		return apperr.Internal("failed to send email", err)
	}

	logger.Info("email_sent", map[string]interface{}{
		"to": req.ToEmail,
	})

	return utils.Message(c, fiber.StatusOK, "email sent successfully", nil)
}
