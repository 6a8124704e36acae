package handler

import (
	"time"

	"channel-service/internal/directory"
	"channel-service/internal/domain"
	"channel-service/internal/lifecycle"
)

// ChannelResponse is the channel API response DTO.
type ChannelResponse struct {
	ChannelID   string    `json:"channelId" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string    `json:"name" example:"general"`
	WorkspaceID *string   `json:"workspaceId,omitempty" example:"550e8400-e29b-41d4-a716-446655440001"`
	IsPublic    bool      `json:"isPublic" example:"true"`
	ReadOnly    bool      `json:"readOnly" example:"false"`
	AccessLevel string    `json:"accessLevel" example:"all" enums:"all,workspace_members,admins_only"`
	CreatedAt   time.Time `json:"createdAt" example:"2026-08-20T12:00:00Z"`
	UpdatedAt   time.Time `json:"updatedAt" example:"2026-08-20T12:00:00Z"`
} // @name ChannelResponse

func ToChannelResponse(channel *domain.Channel) ChannelResponse {
	resp := ChannelResponse{
		ChannelID:   channel.ID.String(),
		Name:        channel.Name,
		IsPublic:    channel.IsPublic,
		ReadOnly:    channel.ReadOnly,
		AccessLevel: string(channel.AccessLevel),
		CreatedAt:   channel.CreatedAt,
		UpdatedAt:   channel.UpdatedAt,
	}
	if channel.WorkspaceID != nil {
		workspaceID := channel.WorkspaceID.String()
		resp.WorkspaceID = &workspaceID
	}
	return resp
}

func ToChannelResponses(channels []domain.Channel) []ChannelResponse {
	responses := make([]ChannelResponse, len(channels))
	for i, channel := range channels {
		responses[i] = ToChannelResponse(&channel)
	}
	return responses
}

// DirectoryResponse is the two-list channel view for one session.
type DirectoryResponse struct {
	Public  []ChannelResponse `json:"public"`
	Private []ChannelResponse `json:"private"`
	Active  *ChannelResponse  `json:"active,omitempty"`
} // @name DirectoryResponse

func ToDirectoryResponse(snap directory.Snapshot) DirectoryResponse {
	resp := DirectoryResponse{
		Public:  ToChannelResponses(snap.Public),
		Private: ToChannelResponses(snap.Private),
	}
	if snap.Active != nil {
		active := ToChannelResponse(snap.Active)
		resp.Active = &active
	}
	return resp
}

// MessageResponse is the message API response DTO.
type MessageResponse struct {
	MessageID string             `json:"messageId" example:"550e8400-e29b-41d4-a716-446655440000"`
	ChannelID string             `json:"channelId" example:"550e8400-e29b-41d4-a716-446655440001"`
	UserID    string             `json:"userId" example:"550e8400-e29b-41d4-a716-446655440002"`
	Content   string             `json:"content" example:"hello"`
	Reactions []ReactionResponse `json:"reactions,omitempty"`
	CreatedAt time.Time          `json:"createdAt" example:"2026-08-20T12:00:00Z"`
	UpdatedAt time.Time          `json:"updatedAt" example:"2026-08-20T12:00:00Z"`
} // @name MessageResponse

func ToMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		MessageID: msg.ID.String(),
		ChannelID: msg.ChannelID.String(),
		UserID:    msg.UserID.String(),
		Content:   msg.Content,
		Reactions: ToReactionResponses(msg.Reactions),
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
}

func ToMessageResponses(messages []domain.Message) []MessageResponse {
	responses := make([]MessageResponse, len(messages))
	for i, msg := range messages {
		responses[i] = ToMessageResponse(&msg)
	}
	return responses
}

// ReactionResponse is the reaction API response DTO.
type ReactionResponse struct {
	ReactionID string    `json:"reactionId" example:"550e8400-e29b-41d4-a716-446655440000"`
	MessageID  string    `json:"messageId" example:"550e8400-e29b-41d4-a716-446655440001"`
	UserID     string    `json:"userId" example:"550e8400-e29b-41d4-a716-446655440002"`
	Emoji      string    `json:"emoji" example:"👍"`
	CreatedAt  time.Time `json:"createdAt" example:"2026-08-20T12:00:00Z"`
} // @name ReactionResponse

func ToReactionResponse(reaction *domain.Reaction) ReactionResponse {
	return ReactionResponse{
		ReactionID: reaction.ID.String(),
		MessageID:  reaction.MessageID.String(),
		UserID:     reaction.UserID.String(),
		Emoji:      reaction.Emoji,
		CreatedAt:  reaction.CreatedAt,
	}
}

func ToReactionResponses(reactions []domain.Reaction) []ReactionResponse {
	if len(reactions) == 0 {
		return nil
	}
	responses := make([]ReactionResponse, len(reactions))
	for i, reaction := range reactions {
		responses[i] = ToReactionResponse(&reaction)
	}
	return responses
}

// PendingDeleteResponse reports an accepted delete request and the
// moment the undo window closes.
type PendingDeleteResponse struct {
	MessageID string    `json:"messageId" example:"550e8400-e29b-41d4-a716-446655440000"`
	Deadline  time.Time `json:"deadline" example:"2026-08-20T12:00:03Z"`
} // @name PendingDeleteResponse

func ToPendingDeleteResponse(pending *lifecycle.PendingDelete) PendingDeleteResponse {
	return PendingDeleteResponse{
		MessageID: pending.MessageID.String(),
		Deadline:  pending.Deadline,
	}
}

// TypingUserResponse is one resolved typing user.
type TypingUserResponse struct {
	UserID      string `json:"userId" example:"550e8400-e29b-41d4-a716-446655440000"`
	DisplayName string `json:"displayName" example:"Dana"`
	AvatarURL   string `json:"avatarUrl,omitempty" example:"https://example.com/avatar.png"`
} // @name TypingUserResponse

func ToTypingUserResponses(profiles []domain.Profile) []TypingUserResponse {
	responses := make([]TypingUserResponse, len(profiles))
	for i, profile := range profiles {
		responses[i] = TypingUserResponse{
			UserID:      profile.UserID.String(),
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
		}
	}
	return responses
}
