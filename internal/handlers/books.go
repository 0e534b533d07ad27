package handlers

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BooksHandler struct {
	DB     *gorm.DB
	Photos *services.PhotoService
}

func NewBooksHandler(db *gorm.DB, photos *services.PhotoService) *BooksHandler {
	return &BooksHandler{DB: db, Photos: photos}
}

var bookOrders = map[string]string{
	"a-z":    "title ASC",
	"z-a":    "title DESC",
	"oldest": "published_date ASC",
	"latest": "published_date DESC",
}

func (h *BooksHandler) List(c *fiber.Ctx) error {
	p, err := utils.ParsePagination(c)
	if err != nil {
		return err
	}
	query := h.DB.Model(&models.Book{})

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where(titleSearchClause, containsPattern(search))
	}
	if clause, args := categoryFilter(c.Query("categories")); clause != "" {
		query = query.Where(clause, args...)
	}

	order, ok := bookOrders[c.Query("sort")]
	if !ok {
		order = bookOrders["latest"]
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	books := []models.Book{}
	if err := utils.ApplyPagination(query.Order(order).Order("created_at DESC"), p).Find(&books).Error; err != nil {
		return err
	}

	return utils.Paginated(c, books, p, total)
}

// categoryFilter matches books having any category that starts with one of
// the requested main categories. Matching is case-sensitive.
func categoryFilter(raw string) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	seen := map[string]struct{}{}
	for _, requested := range strings.Split(raw, ",") {
		main := models.MainCategory(requested)
		if main == "" {
			continue
		}
		if _, ok := seen[main]; ok {
			continue
		}
		seen[main] = struct{}{}
		conditions = append(conditions, "substr(bc.name, 1, ?) = ?")
		args = append(args, utf8.RuneCountInString(main), main)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	clause := "EXISTS (SELECT 1 FROM book_categories bc WHERE bc.book_id = books.id AND (" +
		strings.Join(conditions, " OR ") + "))"
	return clause, args
}

func (h *BooksHandler) Categories(c *fiber.Ctx) error {
	var names []string
	if err := h.DB.Model(&models.BookCategory{}).Distinct("name").Pluck("name", &names).Error; err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(names))
	categories := make([]string, 0, len(names))
	for _, name := range names {
		main := models.MainCategory(name)
		if main == "" {
			continue
		}
		if _, ok := seen[main]; ok {
			continue
		}
		seen[main] = struct{}{}
		categories = append(categories, main)
	}
	sort.Strings(categories)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"categories": categories,
		"count":      len(categories),
	})
}

func (h *BooksHandler) Get(c *fiber.Ctx) error {
	raw := c.Params("id")
	bookID, err := parseUUID("id", raw)
	if err != nil {
		return err
	}

	var book models.Book
	if err := h.DB.First(&book, "id = ?", bookID).Error; err != nil {
		return database.TranslateError(err, fmt.Sprintf("no book with id %s", raw))
	}

	return utils.Success(c, fiber.StatusOK, book)
}

type imageLinksRequest struct {
	SmallThumbnail string `json:"smallThumbnail" validate:"omitempty,url"`
	Thumbnail      string `json:"thumbnail" validate:"omitempty,url"`
}

type createBookRequest struct {
	Title         string             `json:"title" validate:"required,notblank,max=500"`
	GoogleID      *string            `json:"googleID" validate:"omitempty,notblank,max=100"`
	Authors       []string           `json:"authors" validate:"required,min=1,dive,notblank"`
	Publisher     string             `json:"publisher" validate:"required,notblank"`
	Description   string             `json:"description" validate:"required,notblank"`
	PublishedDate string             `json:"publishedDate" validate:"required,isodate"`
	Categories    []string           `json:"categories" validate:"required,min=1,dive,notblank"`
	ImageLinks    *imageLinksRequest `json:"imageLinks"`
}

func (h *BooksHandler) Create(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var req createBookRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	published, err := parseDate("publishedDate", req.PublishedDate)
	if err != nil {
		return err
	}

	book := models.Book{
		Title:         strings.TrimSpace(req.Title),
		Authors:       datatypes.JSONSlice[string](req.Authors),
		Publisher:     req.Publisher,
		Description:   req.Description,
		PublishedDate: models.NewDate(published),
		Categories:    datatypes.JSONSlice[string](req.Categories),
	}
	book.ID = uuid.New()
	if req.GoogleID != nil {
		googleID := strings.TrimSpace(*req.GoogleID)
		book.GoogleID = &googleID
	}
	if req.ImageLinks != nil {
		book.ImageLinks.SmallThumbnail = req.ImageLinks.SmallThumbnail
		book.ImageLinks.Thumbnail = req.ImageLinks.Thumbnail
	}
	book.CategoryRows = models.CategoryRowsFor(book.ID, req.Categories)

	if err := h.DB.Create(&book).Error; err != nil {
		return database.TranslateError(err, "", "googleID")
	}

	logger.InfoWithUser(identity.UserID.String(), "book_created", map[string]interface{}{
		"book_id": book.ID.String(),
		"title":   book.Title,
	})

	return utils.Success(c, fiber.StatusCreated, book)
}

// Delete removes the book together with its discussions, their
// participants, every comment on the book or its discussions, and those
// comments' likes.
func (h *BooksHandler) Delete(c *fiber.Ctx) error {
	raw := c.Params("id")
	bookID, err := parseUUID("id", raw)
	if err != nil {
		return err
	}

	var book models.Book
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&book, "id = ?", bookID).Error; err != nil {
			return database.TranslateError(err, fmt.Sprintf("no book with id %s", raw))
		}

		var discussionIDs []uuid.UUID
		if err := tx.Model(&models.Discussion{}).Where("book_id = ?", bookID).Pluck("id", &discussionIDs).Error; err != nil {
			return err
		}

		commentQuery := tx.Model(&models.Comment{}).Where("book_id = ?", bookID)
		if len(discussionIDs) > 0 {
			commentQuery = commentQuery.Or("discussion_id IN ?", discussionIDs)
		}
		var commentIDs []uuid.UUID
		if err := commentQuery.Pluck("id", &commentIDs).Error; err != nil {
			return err
		}

		if err := deleteComments(tx, commentIDs); err != nil {
			return err
		}
		if len(discussionIDs) > 0 {
			if err := tx.Where("discussion_id IN ?", discussionIDs).Delete(&models.DiscussionParticipant{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", discussionIDs).Delete(&models.Discussion{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("book_id = ?", bookID).Delete(&models.BookCategory{}).Error; err != nil {
			return err
		}
		return tx.Delete(&book).Error
	})
	if err != nil {
		return err
	}

	if book.ImageLinks.CoverKey != nil && h.Photos != nil {
		h.Photos.Delete(c.UserContext(), *book.ImageLinks.CoverKey)
	}

	if identity := middleware.GetIdentity(c); identity != nil {
		logger.InfoWithUser(identity.UserID.String(), "book_deleted", map[string]interface{}{
			"book_id": bookID.String(),
			"title":   book.Title,
		})
	}

	return utils.Message(c, fiber.StatusOK, "book deleted successfully", nil)
}

// deleteComments removes the comments and their likes.
func deleteComments(tx *gorm.DB, commentIDs []uuid.UUID) error {
	if len(commentIDs) == 0 {
		return nil
	}
	if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.CommentLike{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", commentIDs).Delete(&models.Comment{}).Error
}
