package handlers

import (
	"io"

	"github.com/booktalk/backend/internal/apperr"
	"github.com/booktalk/backend/internal/database"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/internal/services"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PhotosHandler struct {
	DB     *gorm.DB
	Photos *services.PhotoService
}

func NewPhotosHandler(db *gorm.DB, photos *services.PhotoService) *PhotosHandler {
	return &PhotosHandler{DB: db, Photos: photos}
}

// readUpload returns the bytes of the multipart "file" field.
func readUpload(c *fiber.Ctx) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, apperr.BadRequest("file is required")
	}
	if fileHeader.Size > services.MaxPhotoBytes {
		return nil, apperr.BadRequest("file must not exceed 5 MB")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, apperr.Internal("failed reading upload", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxPhotoBytes+1))
	if err != nil {
		return nil, apperr.Internal("failed reading upload", err)
	}
	return data, nil
}

func (h *PhotosHandler) UploadAvatar(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return database.TranslateError(err, "user not found")
	}

	data, err := readUpload(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	result, err := h.Photos.Upload(ctx, data, services.AvatarOptions)
	if err != nil {
		return err
	}

	previous := stringValue(user.PhotoKey)
	if err := h.DB.Model(&user).Updates(map[string]interface{}{
		"photo_url": result.CroppedURL,
		"photo_key": result.Key,
	}).Error; err != nil {
		h.Photos.Delete(ctx, result.Key)
		return err
	}
	if previous != "" && previous != result.Key {
		h.Photos.Delete(ctx, previous)
	}

	logger.InfoWithUser(identity.UserID.String(), "avatar_uploaded", map[string]interface{}{
		"key":  result.Key,
		"size": len(data),
	})

	return utils.Message(c, fiber.StatusOK, "avatar uploaded successfully", result)
}

func (h *PhotosHandler) DeleteAvatar(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", identity.UserID).Error; err != nil {
		return database.TranslateError(err, "user not found")
	}
	if user.PhotoKey == nil {
		return apperr.BadRequest("no photo to delete")
	}

	key := *user.PhotoKey
	if err := h.DB.Model(&user).Updates(map[string]interface{}{
		"photo_url": nil,
		"photo_key": nil,
	}).Error; err != nil {
		return err
	}
	h.Photos.Delete(c.UserContext(), key)

	logger.InfoWithUser(identity.UserID.String(), "avatar_deleted", map[string]interface{}{
		"key": key,
	})

	return utils.Message(c, fiber.StatusOK, "photo deleted successfully", nil)
}

func (h *PhotosHandler) UploadCover(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	raw := c.FormValue("bookId")
	if raw == "" {
		return apperr.Validation(apperr.FieldError{Field: "bookId", Message: "bookId is required"})
	}
	bookID, err := parseUUID("bookId", raw)
	if err != nil {
		return err
	}

	var book models.Book
	if err := h.DB.First(&book, "id = ?", bookID).Error; err != nil {
		return database.TranslateError(err, "no book with id "+raw)
	}

	data, err := readUpload(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	result, err := h.Photos.Upload(ctx, data, services.CoverOptions)
	if err != nil {
		return err
	}

	previous := stringValue(book.ImageLinks.CoverKey)
	if err := h.DB.Model(&book).Updates(map[string]interface{}{
		"image_thumbnail":       result.CroppedURL,
		"image_small_thumbnail": result.SmallURL,
		"image_cover_key":       result.Key,
	}).Error; err != nil {
		h.Photos.Delete(ctx, result.Key)
		return err
	}
	if previous != "" && previous != result.Key {
		h.Photos.Delete(ctx, previous)
	}

	logger.InfoWithUser(identity.UserID.String(), "cover_uploaded", map[string]interface{}{
		"book_id": bookID.String(),
		"key":     result.Key,
	})

	return utils.Message(c, fiber.StatusOK, "book cover uploaded successfully", result)
}

func (h *PhotosHandler) DeleteCover(c *fiber.Ctx) error {
	identity, err := currentIdentity(c)
	if err != nil {
		return err
	}

	raw := c.Params("bookId")
	bookID, err := parseUUID("bookId", raw)
	if err != nil {
		return err
	}

	var book models.Book
	if err := h.DB.First(&book, "id = ?", bookID).Error; err != nil {
		return database.TranslateError(err, "no book with id "+raw)
	}
	if book.ImageLinks.CoverKey == nil {
		return apperr.NotFound("no cover to delete for this book")
	}

	key := *book.ImageLinks.CoverKey
	if err := h.DB.Model(&book).Updates(map[string]interface{}{
		"image_thumbnail":       "",
		"image_small_thumbnail": "",
		"image_cover_key":       nil,
	}).Error; err != nil {
		return err
	}
	h.Photos.Delete(c.UserContext(), key)

	logger.InfoWithUser(identity.UserID.String(), "cover_deleted", map[string]interface{}{
		"book_id": bookID.String(),
		"key":     key,
	})

	return utils.Message(c, fiber.StatusOK, "book cover deleted successfully", nil)
}

// stringValue copies the key out before Updates writes through the pointer.
func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
