// Package permission centralizes every channel-visibility and role
// decision as pure functions. Call sites consume these verdicts instead
// of re-deriving them from channel flags.
package permission

import (
	"channel-service/internal/domain"

	"github.com/google/uuid"
)

// CanPost reports whether the caller may post in the channel. Posting
// in a read-only channel is restricted to elevated roles: global admins
// for public channels, workspace admins/owners for private ones.
func CanPost(ch *domain.Channel, rc domain.RoleContext) bool {
	if !ch.ReadOnly {
		return true
	}
	if ch.IsPublic {
		return rc.IsGlobalAdmin()
	}
	return rc.IsWorkspaceAdmin()
}

// CanDelete reports whether the caller may delete the message. Authors
// may always delete their own messages; otherwise deletion requires an
// elevated role matching the channel's visibility.
func CanDelete(msg *domain.Message, ch *domain.Channel, actingUserID uuid.UUID, rc domain.RoleContext) bool {
	if msg.UserID == actingUserID {
		return true
	}
	if ch.IsPublic {
		return rc.IsGlobalAdmin()
	}
	return rc.IsWorkspaceAdmin()
}

// CanEdit reports whether the caller may edit the message. Editing is
// never delegated to admins.
func CanEdit(msg *domain.Message, actingUserID uuid.UUID) bool {
	return msg.UserID == actingUserID
}

// CanManage reports whether the caller may create or destroy the
// channel. Public channels are managed by global admins only; private
// channels by workspace admins and owners, with global admins always
// allowed.
func CanManage(ch *domain.Channel, rc domain.RoleContext) bool {
	if ch.IsPublic {
		return rc.IsGlobalAdmin()
	}
	return rc.IsWorkspaceAdmin() || rc.IsGlobalAdmin()
}

// CanDiscover reports whether a public channel is listable for the
// caller under its access level. Private channels are not covered
// here; they are scoped by workspace membership in the directory.
func CanDiscover(ch *domain.Channel, rc domain.RoleContext) bool {
	if !ch.IsPublic {
		return false
	}
	switch ch.AccessLevel {
	case domain.AccessAdminsOnly:
		return rc.IsGlobalAdmin()
	case domain.AccessWorkspaceMembers:
		return rc.WorkspaceRole != domain.WorkspaceNone || rc.IsGlobalAdmin()
	default:
		return true
	}
}
