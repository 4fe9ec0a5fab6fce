package model

import "errors"

// ErrNoTimestamp is returned by ParseServerTime for an empty timestamp field.
var ErrNoTimestamp = errors.New("no timestamp")

// Credentials is the login request payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is the backend's successful login response. TokenLifetimeMillis
// counts from the moment the token was issued; the client records its own
// issued-at timestamp on receipt.
type Session struct {
	Token               string `json:"token"`
	Username            string `json:"username"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	Role                string `json:"role"`
	Email               string `json:"email,omitempty"`
	UserID              int    `json:"user_id"`
	TokenLifetimeMillis int64  `json:"expires_in"`
	ProfilePhotoURL     string `json:"profile_photo_url,omitempty"`
}

// Messenger is a courier as seen by the dispatcher's tracking feed.
type Messenger struct {
	UserID        int     `json:"user_id"`
	FullName      string  `json:"full_name"`
	CurrentTaskID int     `json:"current_task_id,omitempty"`
	CurrentTask   string  `json:"current_task,omitempty"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	UpdatedAt     string  `json:"updated_at"`
}
