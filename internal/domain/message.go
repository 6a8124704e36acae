package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a posted chat message.
type Message struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"messageId"`
	ChannelID uuid.UUID  `gorm:"type:uuid;not null;index:idx_message_channel_created" json:"channelId"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"type:timestamptz;default:now();not null;index:idx_message_channel_created" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;default:now();not null" json:"updatedAt"`
	Reactions []Reaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// Reaction represents an emoji reaction to a message. One user may
// react with a given emoji at most once per message.
type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"reactionId"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reaction_unique" json:"messageId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_unique" json:"userId"`
	Emoji     string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_reaction_unique" json:"emoji"`
	CreatedAt time.Time `gorm:"type:timestamptz;default:now();not null" json:"createdAt"`
}

func (Reaction) TableName() string {
	return "reactions"
}
