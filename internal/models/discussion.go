package models

import (
	"time"

	"github.com/google/uuid"
)

type Discussion struct {
	BaseModel
	Title        string                  `json:"title" gorm:"type:varchar(500);not null;index"`
	BookID       uuid.UUID               `json:"book" gorm:"type:uuid;not null;index"`
	Content      string                  `json:"content" gorm:"type:text;not null"`
	Date         time.Time               `json:"date" gorm:"not null;index"`
	MeetingLink  string                  `json:"meetingLink" gorm:"type:text;not null"`
	CreatedByID  uuid.UUID               `json:"createdBy" gorm:"type:uuid;not null;index"`
	Members      []DiscussionParticipant `json:"-" gorm:"foreignKey:DiscussionID"`
	Participants []uuid.UUID             `json:"participants" gorm:"-"`
}

// DiscussionParticipant is one membership row. The composite key makes a
// second join by the same user a no-op at the storage level.
type DiscussionParticipant struct {
	DiscussionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt    time.Time
}

// FillParticipants copies loaded membership rows into Participants.
func (d *Discussion) FillParticipants() {
	d.Participants = make([]uuid.UUID, 0, len(d.Members))
	for _, member := range d.Members {
		d.Participants = append(d.Participants, member.UserID)
	}
}
