package models

// ChatID identifies a chat room on the chat platform.
type ChatID int64

// UserID identifies a chat-platform user.
type UserID int64

// User is the display identity of a chat participant.
type User struct {
	ID        UserID `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// DisplayName prefers the first name and falls back to the username.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Guest"
}
