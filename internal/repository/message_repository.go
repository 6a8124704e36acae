package repository

import (
	"channel-service/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	Create(message *domain.Message) error
	GetByID(messageID uuid.UUID) (*domain.Message, error)
	ListByChannel(channelID uuid.UUID, limit, offset int) ([]domain.Message, error)
	Update(message *domain.Message) error
	// Delete removes the message row. A missing row returns
	// domain.ErrNotFound so callers can treat a concurrent delete as
	// already succeeded.
	Delete(messageID uuid.UUID) error
	DeleteByChannel(channelID uuid.UUID) error

	AddReaction(reaction *domain.Reaction) error
	RemoveReaction(messageID, userID uuid.UUID, emoji string) error
	ListReactions(messageID uuid.UUID) ([]domain.Reaction, error)
	// DeleteReactions purges all reactions of a message. It must run
	// before the message row itself is deleted.
	DeleteReactions(messageID uuid.UUID) error
	DeleteReactionsByChannel(channelID uuid.UUID) error
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(message *domain.Message) error {
	return r.db.Create(message).Error
}

func (r *messageRepository) GetByID(messageID uuid.UUID) (*domain.Message, error) {
	var message domain.Message
	err := r.db.Preload("Reactions").
		First(&message, "id = ?", messageID).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListByChannel(channelID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.Where("channel_id = ?", channelID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Preload("Reactions").
		Find(&messages).Error

	return messages, err
}

func (r *messageRepository) Update(message *domain.Message) error {
	return r.db.Save(message).Error
}

func (r *messageRepository) Delete(messageID uuid.UUID) error {
	res := r.db.Delete(&domain.Message{}, "id = ?", messageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *messageRepository) DeleteByChannel(channelID uuid.UUID) error {
	return r.db.Delete(&domain.Message{}, "channel_id = ?", channelID).Error
}

func (r *messageRepository) AddReaction(reaction *domain.Reaction) error {
	// Re-reacting with the same emoji is a no-op, not an error.
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
		DoNothing: true,
	}).Create(reaction).Error
}

func (r *messageRepository) RemoveReaction(messageID, userID uuid.UUID, emoji string) error {
	return r.db.
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&domain.Reaction{}).Error
}

func (r *messageRepository) ListReactions(messageID uuid.UUID) ([]domain.Reaction, error) {
	var reactions []domain.Reaction
	err := r.db.Where("message_id = ?", messageID).
		Find(&reactions).Error

	return reactions, err
}

func (r *messageRepository) DeleteReactions(messageID uuid.UUID) error {
	return r.db.Delete(&domain.Reaction{}, "message_id = ?", messageID).Error
}

func (r *messageRepository) DeleteReactionsByChannel(channelID uuid.UUID) error {
	return r.db.
		Where("message_id IN (?)", r.db.Model(&domain.Message{}).Select("id").Where("channel_id = ?", channelID)).
		Delete(&domain.Reaction{}).Error
}
