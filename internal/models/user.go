package models

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Name                   string     `json:"name" gorm:"type:varchar(100);not null"`
	Email                  string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash           string     `json:"-" gorm:"type:text;not null"`
	Role                   UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	PhotoURL               *string    `json:"photoURL,omitempty" gorm:"type:text"`
	PhotoKey               *string    `json:"-" gorm:"type:text"`
	PasswordResetDigest    *string    `json:"-" gorm:"type:varchar(64);index"`
	PasswordResetExpiresAt *time.Time `json:"-"`
}

// PublicProfile is what other users may see of an account.
type PublicProfile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	PhotoURL *string  `json:"photoURL,omitempty"`
}

func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:       u.ID.String(),
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		PhotoURL: u.PhotoURL,
	}
}
