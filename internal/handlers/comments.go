package handlers

import (
	"strings"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const commentNotFound = "comment was not found"

type CommentsHandler struct {
	DB *gorm.DB
}

func NewCommentsHandler(db *gorm.DB) *CommentsHandler {
	return &CommentsHandler{DB: db}
}

type listCommentsQuery struct {
	ItemID string `query:"itemId" validate:"required"`
}

// List returns the comments of a book or a discussion, newest first.
func (h *CommentsHandler) List(c *fiber.Ctx) error {
	var q listCommentsQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	itemID, err := parseUUID("itemId", q.ItemID)
	if err != nil {
		return err
	}

	p, err := utils.ParsePagination(c)
	if err != nil {
		return err
	}
	query := h.DB.Model(&models.Comment{}).Where("book_id = ? OR discussion_id = ?", itemID, itemID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	comments := []models.Comment{}
	err = utils.ApplyPagination(query.Preload("LikeRows").Order("created_at DESC"), p).
		Find(&comments).Error
	if err != nil {
		return err
	}
	for i := range comments {
		comments[i].FillLikes()
	}
	if err := h.attachAuthors(comments); err != nil {
		return err
	}

	return utils.Paginated(c, comments, p, total)
}

func (h *CommentsHandler) attachAuthors(comments []models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(comments))
	for _, comment := range comments {
		ids = append(ids, comment.UserID)
	}

	var authors []models.CommentAuthor
	err := h.DB.Model(&models.User{}).
		Select("id", "name", "photo_url").
		Where("id IN ?", ids).
		Find(&authors).Error
	if err != nil {
		return err
	}
	models.AttachAuthors(comments, authors)
	return nil
}

type createCommentRequest struct {
	Text       string  `json:"text" validate:"required,notblank"`
	Book       *string `json:"book" validate:"omitempty,uuid"`
	Discussion *string `json:"discussion" validate:"omitempty,uuid"`
}

func (h *CommentsHandler) Create(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req createCommentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	hasBook := req.Book != nil && *req.Book != ""
	hasDiscussion := req.Discussion != nil && *req.Discussion != ""
	if hasBook == hasDiscussion {
		return apperr.Validation(apperr.FieldError{
			Field:   "book",
			Message: "exactly one of book or discussion is required",
		})
	}

	comment := models.Comment{
		UserID: identity.UserID,
		Text:   strings.TrimSpace(req.Text),
		Likes:  []uuid.UUID{},
	}

	if hasBook {
		bookID, err := parseUUID("book", *req.Book)
		if err != nil {
			return err
		}
		if err := h.DB.Select("id").First(&models.Book{}, "id = ?", bookID).Error; err != nil {
			return database.TranslateError(err, "no book with id "+*req.Book)
		}
		comment.BookID = &bookID
	} else {
		discussionID, err := parseUUID("discussion", *req.Discussion)
		if err != nil {
			return err
		}
		if err := h.DB.Select("id").First(&models.Discussion{}, "id = ?", discussionID).Error; err != nil {
			return database.TranslateError(err, "no discussion with id "+*req.Discussion)
		}
		comment.DiscussionID = &discussionID
	}

	if err := h.DB.Create(&comment).Error; err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "comment_created", map[string]interface{}{
		"comment_id": comment.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, comment)
}

// Delete is allowed to the comment's author and to admins. The caller's
// role is read from the database rather than trusted from the token.
func (h *CommentsHandler) Delete(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	commentID, err := parseUUID("id", c.Params("id"))
	if err != nil {
		return err
	}

	var comment models.Comment
	if err := h.DB.First(&comment, "id = ?", commentID).Error; err != nil {
		return database.TranslateError(err, commentNotFound)
	}

	if comment.UserID != identity.UserID {
		var caller models.User
		if err := h.DB.Select("id", "role").First(&caller, "id = ?", identity.UserID).Error; err != nil {
			return database.TranslateError(err, "user not found")
		}
		if caller.Role != models.UserRoleAdmin {
			logger.Warn("comment_delete_denied", map[string]interface{}{
				"comment_id": comment.ID.String(),
				"user_id":    identity.UserID.String(),
			})
			return apperr.Unauthenticated("you are not authorized to delete this comment")
		}
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		return deleteComments(tx, []uuid.UUID{comment.ID})
	})
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "comment_deleted", map[string]interface{}{
		"comment_id": comment.ID.String(),
	})

	return utils.Message(c, fiber.StatusOK, "comment was successfully deleted", nil)
}

type likeResponse struct {
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"likeCount"`
	Message   string `json:"message"`
}

// ToggleLike removes the caller's like when present and adds it otherwise.
// The like table's primary key arbitrates concurrent toggles.
func (h *CommentsHandler) ToggleLike(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	commentID, err := parseUUID("id", c.Params("id"))
	if err != nil {
		return err
	}

	var resp likeResponse
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.Select("id").First(&comment, "id = ?", commentID).Error; err != nil {
			return database.TranslateError(err, commentNotFound)
		}

		removed := tx.Where("comment_id = ? AND user_id = ?", commentID, identity.UserID).Delete(&models.CommentLike{})
		if removed.Error != nil {
			return removed.Error
		}

		if removed.RowsAffected > 0 {
			resp.Liked = false
			resp.Message = "your like has been removed"
			if err := tx.Model(&models.Comment{}).Where("id = ? AND like_count > 0", commentID).
				UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error; err != nil {
				return err
			}
		} else {
			added := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CommentLike{
				CommentID: commentID,
				UserID:    identity.UserID,
			})
			if added.Error != nil {
				return added.Error
			}
			resp.Liked = true
			resp.Message = "you liked the comment"
			if added.RowsAffected > 0 {
				if err := tx.Model(&models.Comment{}).Where("id = ?", commentID).
					UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error; err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.Comment{}).Select("like_count").Where("id = ?", commentID).Row().Scan(&resp.LikeCount)
	})
	if err != nil {
		return err
	}

	logger.InfoWithUser(identity.UserID.String(), "comment_like_toggled", map[string]interface{}{
		"comment_id": commentID.String(),
		"liked":      resp.Liked,
	})

	return utils.Success(c, fiber.StatusOK, resp)
}
