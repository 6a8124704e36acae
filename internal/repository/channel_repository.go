package repository

import (
	"channel-service/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChannelRepository interface {
	Create(channel *domain.Channel) error
	GetByID(channelID uuid.UUID) (*domain.Channel, error)
	ListPublic() ([]domain.Channel, error)
	ListPrivate(workspaceID uuid.UUID) ([]domain.Channel, error)
	Update(channel *domain.Channel) error
	Delete(channelID uuid.UUID) error
}

type channelRepository struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Create(channel *domain.Channel) error {
	return r.db.Create(channel).Error
}

func (r *channelRepository) GetByID(channelID uuid.UUID) (*domain.Channel, error) {
	var channel domain.Channel
	err := r.db.First(&channel, "id = ?", channelID).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *channelRepository) ListPublic() ([]domain.Channel, error) {
	var channels []domain.Channel
	err := r.db.Where("is_public = true").
		Order("name ASC").
		Find(&channels).Error

	return channels, err
}

func (r *channelRepository) ListPrivate(workspaceID uuid.UUID) ([]domain.Channel, error) {
	var channels []domain.Channel
	err := r.db.Where("is_public = false AND workspace_id = ?", workspaceID).
		Order("name ASC").
		Find(&channels).Error

	return channels, err
}

func (r *channelRepository) Update(channel *domain.Channel) error {
	return r.db.Save(channel).Error
}

func (r *channelRepository) Delete(channelID uuid.UUID) error {
	res := r.db.Delete(&domain.Channel{}, "id = ?", channelID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
