package models

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ImageLinks struct {
	SmallThumbnail string  `json:"smallThumbnail" gorm:"type:text"`
	Thumbnail      string  `json:"thumbnail" gorm:"type:text"`
	CoverKey       *string `json:"-" gorm:"type:text"`
}

type Book struct {
	BaseModel
	Title         string                      `json:"title" gorm:"type:varchar(500);not null;index"`
	GoogleID      *string                     `json:"googleID,omitempty" gorm:"column:google_id;type:varchar(100);uniqueIndex"`
	Authors       datatypes.JSONSlice[string] `json:"authors" gorm:"not null"`
	Publisher     string                      `json:"publisher" gorm:"type:varchar(255)"`
	Description   string                      `json:"description" gorm:"type:text"`
	PublishedDate Date                        `json:"publishedDate" gorm:"index"`
	Categories    datatypes.JSONSlice[string] `json:"categories" gorm:"not null"`
	ImageLinks    ImageLinks                  `json:"imageLinks" gorm:"embedded;embeddedPrefix:image_"`
	CategoryRows  []BookCategory              `json:"-" gorm:"foreignKey:BookID"`
}

// BookCategory mirrors Book.Categories so the catalog can be filtered with
// plain SQL on every supported database.
type BookCategory struct {
	BookID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name   string    `gorm:"type:varchar(255);primaryKey"`
}

// MainCategory returns the part of a category before its first "/".
func MainCategory(category string) string {
	main, _, _ := strings.Cut(category, "/")
	return strings.TrimSpace(main)
}

// CategoryRowsFor returns the de-duplicated rows for a book's categories.
func CategoryRowsFor(bookID uuid.UUID, categories []string) []BookCategory {
	seen := make(map[string]struct{}, len(categories))
	rows := make([]BookCategory, 0, len(categories))
	for _, category := range categories {
		name := strings.TrimSpace(category)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		rows = append(rows, BookCategory{BookID: bookID, Name: name})
	}
	return rows
}
