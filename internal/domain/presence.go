package domain

import "github.com/google/uuid"

// PresenceRecord is the ephemeral per-channel, per-user typing state.
// It lives only in redis and in memory; it is never persisted. At most
// one record exists per (channel, user) and the latest write wins.
type PresenceRecord struct {
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

// Profile is the display metadata resolved for a user id.
type Profile struct {
	UserID      uuid.UUID `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
}
