package models

import (
	"time"

	"github.com/google/uuid"
)

type Comment struct {
	BaseModel
	UserID       uuid.UUID      `json:"user" gorm:"type:uuid;not null;index"`
	BookID       *uuid.UUID     `json:"book,omitempty" gorm:"type:uuid;index"`
	DiscussionID *uuid.UUID     `json:"discussion,omitempty" gorm:"type:uuid;index"`
	Text         string         `json:"text" gorm:"type:text;not null"`
	LikeCount    int            `json:"likeCount" gorm:"not null;default:0"`
	LikeRows     []CommentLike  `json:"-" gorm:"foreignKey:CommentID"`
	Likes        []uuid.UUID    `json:"likes" gorm:"-"`
	Author       *CommentAuthor `json:"author,omitempty" gorm:"-"`
}

// CommentAuthor is the part of a commenter's account shown next to the
// comment. Email and role stay private.
type CommentAuthor struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	PhotoURL *string   `json:"photoURL,omitempty"`
}

type CommentLike struct {
	CommentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

// AttachAuthors sets Author on each comment from authors keyed by user id.
func AttachAuthors(comments []Comment, authors []CommentAuthor) {
	byID := make(map[uuid.UUID]*CommentAuthor, len(authors))
	for i := range authors {
		byID[authors[i].ID] = &authors[i]
	}
	for i := range comments {
		comments[i].Author = byID[comments[i].UserID]
	}
}

func (c *Comment) FillLikes() {
	c.Likes = make([]uuid.UUID, 0, len(c.LikeRows))
	for _, like := range c.LikeRows {
		c.Likes = append(c.Likes, like.UserID)
	}
}
