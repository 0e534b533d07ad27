package handlers

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const resetRequestedMessage = "if an account exists for this email, a reset link has been sent"

type AuthHandler struct {
	DB       *gorm.DB
	Notifier Notifier
	Reset    config.ResetConfig
}

func NewAuthHandler(db *gorm.DB, notifier Notifier, reset config.ResetConfig) *AuthHandler {
	return &AuthHandler{DB: db, Notifier: notifier, Reset: reset}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string               `json:"token"`
	User  models.PublicProfile `json:"user"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return apperr.Internal("failed hashing password", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         models.UserRoleUser,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("user with this email already exists")
		}
		return err
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return apperr.Internal("failed generating token", err)
	}

	logger.InfoWithUser(user.ID.String(), "user_registered", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return utils.Success(c, fiber.StatusCreated, authResponse{Token: token, User: user.Profile()})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		logger.Warn("login_failed", map[string]interface{}{
			"email":  email,
			"ip":     c.IP(),
			"reason": "user_not_found",
		})
		return apperr.Unauthenticated("invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed", map[string]interface{}{
			"email":  email,
			"ip":     c.IP(),
			"reason": "wrong_password",
		})
		return apperr.Unauthenticated("invalid credentials")
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return apperr.Internal("failed generating token", err)
	}

	logger.InfoWithUser(user.ID.String(), "login_success", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, authResponse{Token: token, User: user.Profile()})
}

// Profile returns the caller's profile, or another user's public profile
// when ?email= is given.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var user models.User
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		err = h.DB.Where("email = ?", strings.ToLower(email)).First(&user).Error
		if err != nil {
			return database.TranslateError(err, "user with this email was not found")
		}
		return utils.Success(c, fiber.StatusOK, user.Profile())
	}

	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return database.TranslateError(err, "user not found")
	}
	return utils.Success(c, fiber.StatusOK, user.Profile())
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,notblank,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		updates["email"] = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if len(updates) == 0 {
		return apperr.BadRequest("no valid fields to update")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return database.TranslateError(err, "user not found")
	}

	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return database.TranslateError(err, "", "email")
	}
	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return err
	}

	logger.InfoWithUser(user.ID.String(), "profile_updated", map[string]interface{}{
		"fields": len(updates),
	})

	return utils.Success(c, fiber.StatusOK, user.Profile())
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return database.TranslateError(err, "user not found")
	}

	if !utils.CheckPassword(req.OldPassword, user.PasswordHash) {
		return apperr.BadRequest("current password is incorrect")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal("failed hashing password", err)
	}

	if err := h.DB.Model(&user).Update("password_hash", hash).Error; err != nil {
		return err
	}

	logger.InfoWithUser(user.ID.String(), "password_changed", nil)

	return utils.Message(c, fiber.StatusOK, "password updated successfully", nil)
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestPasswordReset answers the same way whether or not the account
// exists.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	if err := h.DB.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		logger.Info("password_reset_unknown_email", map[string]interface{}{
			"ip": c.IP(),
		})
		return utils.Message(c, fiber.StatusOK, resetRequestedMessage, nil)
	}

	token, digest, err := utils.GenerateResetToken()
	if err != nil {
		return apperr.Internal("failed generating reset token", err)
	}
	expiresAt := time.Now().UTC().Add(h.Reset.TokenTTL)

	if err := h.DB.Model(&user).Updates(map[string]interface{}{
		"password_reset_digest":     digest,
		"password_reset_expires_at": expiresAt,
	}).Error; err != nil {
		return err
	}

	if h.Notifier != nil {
		h.Notifier.Enqueue(services.PasswordResetMessage(user.Email, h.resetLink(token), h.Reset.TokenTTL))
	}

	logger.InfoWithUser(user.ID.String(), "password_reset_requested", map[string]interface{}{
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	return utils.Message(c, fiber.StatusOK, resetRequestedMessage, nil)
}

func (h *AuthHandler) resetLink(token string) string {
	base := h.Reset.LinkBaseURL
	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return base + separator + "token=" + url.QueryEscape(token)
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// ResetPassword consumes the token in the same statement that sets the new
// password, so a token can be used once.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return apperr.Internal("failed hashing password", err)
	}

	digest := utils.HashResetToken(strings.TrimSpace(req.Token))
	result := h.DB.Model(&models.User{}).
		Where("password_reset_digest = ? AND password_reset_expires_at > ?", digest, time.Now().UTC()).
		Updates(map[string]interface{}{
			"password_hash":             hash,
			"password_reset_digest":     nil,
			"password_reset_expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		logger.Warn("password_reset_rejected", map[string]interface{}{
			"ip": c.IP(),
		})
		return apperr.BadRequest("invalid or expired reset token")
	}

	logger.Info("password_reset_completed", map[string]interface{}{
		"ip": c.IP(),
	})

	return utils.Message(c, fiber.StatusOK, "password has been reset", nil)
}
