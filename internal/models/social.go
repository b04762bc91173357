package models

import "time"

// Follow is a directed edge from follower to followed.
type Follow struct {
	FollowerID string    `json:"follower_id" gorm:"primaryKey;type:varchar(36)"`
	FollowedID string    `json:"followed_id" gorm:"primaryKey;type:varchar(36);index"`
	CreatedAt  time.Time `json:"created_at"`

	Follower *User `json:"-" gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE"`
	Followed *User `json:"-" gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE"`
}

// Notification types.
const (
	NotificationNewIssue    = "new_issue"
	NotificationNewFollower = "new_follower"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Type      string    `json:"type" gorm:"type:varchar(50);not null"`
	Title     string    `json:"title" gorm:"type:varchar(255);not null"`
	Message   string    `json:"message" gorm:"type:text"`
	Link      string    `json:"link" gorm:"type:varchar(255)"`
	Read      bool      `json:"read" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`

	User *User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
