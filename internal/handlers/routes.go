package handlers

import (
	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/middleware"
	"github.com/booktalk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Notifier queues best-effort emails.
type Notifier interface {
	Enqueue(msg services.Message) bool
}

// Dependencies are built once at startup and shared by every handler.
type Dependencies struct {
	DB       *gorm.DB
	Photos   *services.PhotoService
	Sender   services.Sender
	Notifier Notifier
	Reset    config.ResetConfig
}

// RegisterRoutes mounts the API under /api/v1 and the health check.
func RegisterRoutes(app *fiber.App, deps Dependencies) {
	authHandler := NewAuthHandler(deps.DB, deps.Notifier, deps.Reset)
	booksHandler := NewBooksHandler(deps.DB, deps.Photos)
	discussionsHandler := NewDiscussionsHandler(deps.DB, deps.Notifier)
	commentsHandler := NewCommentsHandler(deps.DB)
	photosHandler := NewPhotosHandler(deps.DB, deps.Photos)
	emailHandler := NewEmailHandler(deps.Sender)
	systemHandler := NewSystemHandler(deps.DB)

	app.Get("/health", systemHandler.Health)

	api := app.Group(apiPrefix)
	api.Get("/version", systemHandler.Version)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/request", authHandler.RequestPasswordReset)
	authRoutes.Post("/reset", authHandler.ResetPassword)
	authRoutes.Get("/profile", middleware.RequireAuth, authHandler.Profile)
	authRoutes.Post("/profile", middleware.RequireAuth, authHandler.UpdateProfile)
	authRoutes.Put("/password", middleware.RequireAuth, authHandler.ChangePassword)

	bookRoutes := api.Group("/books")
	bookRoutes.Get("/", booksHandler.List)
	bookRoutes.Get("/categories", booksHandler.Categories)
	bookRoutes.Get("/:id", booksHandler.Get)
	bookRoutes.Post("/", middleware.RequireAuth, booksHandler.Create)
	bookRoutes.Delete("/:id", middleware.RequireAuth, middleware.AdminOnly, booksHandler.Delete)

	discussionRoutes := api.Group("/discussions")
	discussionRoutes.Get("/", discussionsHandler.List)
	discussionRoutes.Get("/:id", discussionsHandler.Get)
	discussionRoutes.Post("/", middleware.RequireAuth, discussionsHandler.Create)
	discussionRoutes.Patch("/:id", middleware.RequireAuth, discussionsHandler.Update)
	discussionRoutes.Delete("/:id", middleware.RequireAuth, discussionsHandler.Delete)
	discussionRoutes.Post("/:id/join", middleware.RequireAuth, discussionsHandler.Join)
	discussionRoutes.Post("/:id/unjoin", middleware.RequireAuth, discussionsHandler.Unjoin)

	commentRoutes := api.Group("/comments")
	commentRoutes.Get("/", commentsHandler.List)
	commentRoutes.Post("/", middleware.RequireAuth, commentsHandler.Create)
	commentRoutes.Delete("/:id", middleware.RequireAuth, commentsHandler.Delete)
	commentRoutes.Post("/:id/like", middleware.RequireAuth, commentsHandler.ToggleLike)

	photoRoutes := api.Group("/photo", middleware.RequireAuth)
	photoRoutes.Post("/avatar", photosHandler.UploadAvatar)
	photoRoutes.Delete("/avatar", photosHandler.DeleteAvatar)
	photoRoutes.Post("/cover", photosHandler.UploadCover)
	photoRoutes.Delete("/cover/:bookId", photosHandler.DeleteCover)

	api.Post("/email", emailHandler.Send)

	app.Use(middleware.NotFound)
}
