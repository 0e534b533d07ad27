package handlers

import (
	"fmt"
	"strings"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DiscussionsHandler struct {
	DB       *gorm.DB
	Notifier Notifier
}

func NewDiscussionsHandler(db *gorm.DB, notifier Notifier) *DiscussionsHandler {
	return &DiscussionsHandler{DB: db, Notifier: notifier}
}

func (h *DiscussionsHandler) List(c *fiber.Ctx) error {
	p, err := utils.ParsePagination(c)
	if err != nil {
		return err
	}
	query := h.DB.Model(&models.Discussion{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where(titleSearchClause, containsPattern(search))
	}
	if raw := strings.TrimSpace(c.Query("bookId")); raw != "" {
		bookID, err := parseUUID("bookId", raw)
		if err != nil {
			return err
		}
		query = query.Where("book_id = ?", bookID)
	}

	order := "date DESC"
	if c.Query("sort") == "oldest" {
		order = "date ASC"
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	discussions := []models.Discussion{}
	if err := utils.ApplyPagination(query.Preload("Members").Order(order).Order("created_at DESC"), p).Find(&discussions).Error; err != nil {
		return err
	}
	for i := range discussions {
		discussions[i].FillParticipants()
	}

	return utils.Paginated(c, discussions, p, total)
}

func (h *DiscussionsHandler) Get(c *fiber.Ctx) error {
	discussion, err := h.load(c.Params("id"), true)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, discussion)
}

// load fetches a discussion by its raw path id.
func (h *DiscussionsHandler) load(raw string, withMembers bool) (*models.Discussion, error) {
	discussionID, err := parseUUID("id", raw)
	if err != nil {
		return nil, err
	}

	query := h.DB
	if withMembers {
		query = query.Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
	}

	var discussion models.Discussion
	if err := query.First(&discussion, "id = ?", discussionID).Error; err != nil {
		return nil, database.TranslateError(err, fmt.Sprintf("no discussion with id %s", raw))
	}
	discussion.FillParticipants()
	return &discussion, nil
}

type createDiscussionRequest struct {
	Title       string `json:"title" validate:"required,notblank,max=500"`
	Book        string `json:"book" validate:"required,uuid"`
	Content     string `json:"content" validate:"required,notblank"`
	Date        string `json:"date" validate:"required,isodate"`
	MeetingLink string `json:"meetingLink" validate:"required,url"`
}

func (h *DiscussionsHandler) Create(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req createDiscussionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	bookID, err := parseUUID("book", req.Book)
	if err != nil {
		return err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return err
	}

	var book models.Book
	if err := h.DB.Select("id").First(&book, "id = ?", bookID).Error; err != nil {
		return database.TranslateError(err, fmt.Sprintf("no book with id %s", req.Book))
	}

	discussion := models.Discussion{
		Title:        strings.TrimSpace(req.Title),
		BookID:       bookID,
		Content:      req.Content,
		Date:         date,
		MeetingLink:  strings.TrimSpace(req.MeetingLink),
		CreatedByID:  identity.UserID,
		Participants: []uuid.UUID{},
	}
	if err := h.DB.Create(&discussion).Error; err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "discussion_created", map[string]interface{}{
		"discussion_id": discussion.ID.String(),
		"book_id":       bookID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, discussion)
}

type updateDiscussionRequest struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=500"`
	Content     *string `json:"content" validate:"omitempty,notblank"`
	Date        *string `json:"date" validate:"omitempty,isodate"`
	MeetingLink *string `json:"meetingLink" validate:"omitempty,url"`
}

// ensureCreator rejects callers that did not create the discussion. The
// API reports this as an authentication failure.
func ensureCreator(identity *middleware.Identity, discussion *models.Discussion, action string) error {
	if discussion.CreatedByID != identity.UserID {
		logger.Warn("discussion_"+action+"_denied", map[string]interface{}{
			"discussion_id": discussion.ID.String(),
			"user_id":       identity.UserID.String(),
		})
		return apperr.Unauthenticated(fmt.Sprintf("you are not authorized to %s this discussion", action))
	}
	return nil
}

func (h *DiscussionsHandler) Update(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	discussion, err := h.load(c.Params("id"), false)
	if err != nil {
		return err
	}
	if err := ensureCreator(identity, discussion, "update"); err != nil {
		return err
	}

	var req updateDiscussionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		updates["content"] = *req.Content
	}
	if req.Date != nil {
		date, err := parseDate("date", *req.Date)
		if err != nil {
			return err
		}
		updates["date"] = date
	}
	if req.MeetingLink != nil {
		updates["meeting_link"] = strings.TrimSpace(*req.MeetingLink)
	}
	if len(updates) == 0 {
		return apperr.BadRequest("no valid fields to update")
	}

	if err := h.DB.Model(&models.Discussion{}).Where("id = ?", discussion.ID).Updates(updates).Error; err != nil {
		return err
	}

	updated, err := h.load(discussion.ID.String(), true)
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "discussion_updated", map[string]interface{}{
		"discussion_id": discussion.ID.String(),
		"fields":        len(updates),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete removes the discussion with its participants and comments.
func (h *DiscussionsHandler) Delete(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	discussion, err := h.load(c.Params("id"), false)
	if err != nil {
		return err
	}
	if err := ensureCreator(identity, discussion, "delete"); err != nil {
		return err
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var commentIDs []uuid.UUID
		if err := tx.Model(&models.Comment{}).Where("discussion_id = ?", discussion.ID).Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if err := deleteComments(tx, commentIDs); err != nil {
			return err
		}
		if err := tx.Where("discussion_id = ?", discussion.ID).Delete(&models.DiscussionParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Discussion{}, "id = ?", discussion.ID).Error
	})
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "discussion_deleted", map[string]interface{}{
		"discussion_id": discussion.ID.String(),
	})

	return utils.Message(c, fiber.StatusOK, "discussion deleted successfully", nil)
}

// Join adds the caller as a participant. The primary key on the membership
// table decides whether the caller was already in.
func (h *DiscussionsHandler) Join(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	discussion, err := h.load(c.Params("id"), false)
	if err != nil {
		return err
	}

	result := h.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.DiscussionParticipant{
		DiscussionID: discussion.ID,
		UserID:       identity.UserID,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.BadRequest("you are already a participant")
	}

	updated, err := h.load(discussion.ID.String(), true)
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "discussion_joined", map[string]interface{}{
		"discussion_id": discussion.ID.String(),
	})
	h.notify(identity, func(email string) services.Message {
		return services.DiscussionJoinedMessage(email, updated.Title, updated.Date, updated.MeetingLink)
	})

	return utils.Message(c, fiber.StatusOK, "you joined the discussion", updated)
}

func (h *DiscussionsHandler) Unjoin(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	discussion, err := h.load(c.Params("id"), false)
	if err != nil {
		return err
	}

	result := h.DB.Where("discussion_id = ? AND user_id = ?", discussion.ID, identity.UserID).
		Delete(&models.DiscussionParticipant{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.BadRequest("you are not a participant in this discussion")
	}

	updated, err := h.load(discussion.ID.String(), true)
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "discussion_left", map[string]interface{}{
		"discussion_id": discussion.ID.String(),
	})
	h.notify(identity, func(email string) services.Message {
		return services.DiscussionLeftMessage(email, updated.Title)
	})

	return utils.Message(c, fiber.StatusOK, "you left the discussion", updated)
}

// notify queues an email to the caller. Lookup or queue failures are
// logged and never affect the response.
func (h *DiscussionsHandler) notify(identity *middleware.Identity, build func(email string) services.Message) {
	if h.Notifier == nil {
		return
	}

	var user models.User
	if err := h.DB.Select("id", "email").First(&user, "id = ?", identity.UserID).Error; err != nil {
		logger.Warn("notification_skipped", map[string]interface{}{
			"user_id": identity.UserID.String(),
			"error":   err.Error(),
		})
		return
	}
	h.Notifier.Enqueue(build(user.Email))
}
