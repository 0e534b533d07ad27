package database

import (
	"strings"

	"github.com/booktalk/backend/internal/config"
	"github.com/booktalk/backend/internal/models"
	"github.com/booktalk/backend/pkg/logger"
	"github.com/booktalk/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DB.URL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := SeedAdmin(db, cfg.Admin); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.BookCategory{},
		&models.Discussion{},
		&models.DiscussionParticipant{},
		&models.Comment{},
		&models.CommentLike{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'comment_target_check'
  ) THEN
    ALTER TABLE comments
    ADD CONSTRAINT comment_target_check
    CHECK (
      (book_id IS NOT NULL AND discussion_id IS NULL)
      OR
      (book_id IS NULL AND discussion_id IS NOT NULL)
    );
  END IF;
END $$;`

	return db.Exec(constraint).Error
}

// SeedAdmin creates the configured administrator unless an account with
// that email already exists.
func SeedAdmin(db *gorm.DB, cfg config.AdminConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return nil
	}

	hash, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	admin := models.User{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
	}

	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&admin)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		logger.Info("admin_seeded", map[string]interface{}{"email": email})
	}
	return nil
}
