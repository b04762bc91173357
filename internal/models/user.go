package models

import "time"

// User is a creator or reader, keyed by the identity provider's external id.
type User struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ExternalID         string    `json:"-" gorm:"uniqueIndex;type:varchar(128);not null"`
	Username           string    `json:"username" gorm:"uniqueIndex;type:varchar(80);not null"`
	Email              string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	DisplayName        string    `json:"display_name" gorm:"type:varchar(255)"`
	AvatarURL          string    `json:"avatar_url" gorm:"type:varchar(2048)"`
	Bio                string    `json:"bio" gorm:"type:text"`
	Website            string    `json:"website" gorm:"type:varchar(255)"`
	EmailNotifications bool      `json:"email_notifications" gorm:"not null"`
	FollowersCount     int       `json:"followers_count" gorm:"not null;default:0"`
	FollowingCount     int       `json:"following_count" gorm:"not null;default:0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
