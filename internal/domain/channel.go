package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccessLevel restricts who can discover a public channel. It is
// independent of ReadOnly, which only restricts posting.
type AccessLevel string

const (
	AccessAll              AccessLevel = "all"
	AccessWorkspaceMembers AccessLevel = "workspace_members"
	AccessAdminsOnly       AccessLevel = "admins_only"
)

// Channel represents a named message stream. Public channels are
// platform-wide (WorkspaceID may be nil); private channels always
// belong to exactly one workspace.
type Channel struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"channelId"`
	Name        string      `gorm:"type:varchar(100);not null" json:"name"`
	WorkspaceID *uuid.UUID  `gorm:"type:uuid;index" json:"workspaceId,omitempty"`
	IsPublic    bool        `gorm:"not null;default:false" json:"isPublic"`
	ReadOnly    bool        `gorm:"not null;default:false" json:"readOnly"`
	AccessLevel AccessLevel `gorm:"type:varchar(20);default:'all'" json:"accessLevel"`
	CreatedAt   time.Time   `gorm:"type:timestamptz;default:now();not null" json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"type:timestamptz;default:now();not null" json:"updatedAt"`
}

func (Channel) TableName() string {
	return "channels"
}

// BelongsTo reports whether the channel is scoped to the given
// workspace. A nil scope matches only channels without a workspace.
func (c *Channel) BelongsTo(workspaceID *uuid.UUID) bool {
	if c.WorkspaceID == nil || workspaceID == nil {
		return c.WorkspaceID == nil && workspaceID == nil
	}
	return *c.WorkspaceID == *workspaceID
}
