package permission

import (
	"testing"

	"channel-service/internal/domain"

	"github.com/google/uuid"
)

func roleCtx(g domain.GlobalRole, w domain.WorkspaceRole) domain.RoleContext {
	return domain.RoleContext{GlobalRole: g, WorkspaceRole: w}
}

var allGlobalRoles = []domain.GlobalRole{
	domain.GlobalMember, domain.GlobalAdmin, domain.GlobalSuperadmin,
}

var allWorkspaceRoles = []domain.WorkspaceRole{
	domain.WorkspaceMember, domain.WorkspaceAdmin, domain.WorkspaceOwner, domain.WorkspaceNone,
}

func TestCanPostOpenChannel(t *testing.T) {
	ch := &domain.Channel{IsPublic: true, ReadOnly: false}
	for _, g := range allGlobalRoles {
		for _, w := range allWorkspaceRoles {
			if !CanPost(ch, roleCtx(g, w)) {
				t.Fatalf("posting in a non-read-only channel should be allowed for %s/%s", g, w)
			}
		}
	}
}

func TestCanPostReadOnlyPublic(t *testing.T) {
	ch := &domain.Channel{IsPublic: true, ReadOnly: true}
	tests := []struct {
		global domain.GlobalRole
		want   bool
	}{
		{domain.GlobalMember, false},
		{domain.GlobalAdmin, true},
		{domain.GlobalSuperadmin, true},
	}
	for _, tt := range tests {
		// workspace role must not leak into public channel decisions
		for _, w := range allWorkspaceRoles {
			if got := CanPost(ch, roleCtx(tt.global, w)); got != tt.want {
				t.Fatalf("CanPost(public read-only, %s/%s) = %v, want %v", tt.global, w, got, tt.want)
			}
		}
	}
}

func TestCanPostReadOnlyPrivate(t *testing.T) {
	wsID := uuid.New()
	ch := &domain.Channel{IsPublic: false, ReadOnly: true, WorkspaceID: &wsID}
	tests := []struct {
		workspace domain.WorkspaceRole
		want      bool
	}{
		{domain.WorkspaceNone, false},
		{domain.WorkspaceMember, false},
		{domain.WorkspaceAdmin, true},
		{domain.WorkspaceOwner, true},
	}
	for _, tt := range tests {
		// global role must not leak into private channel decisions
		for _, g := range allGlobalRoles {
			if got := CanPost(ch, roleCtx(g, tt.workspace)); got != tt.want {
				t.Fatalf("CanPost(private read-only, %s/%s) = %v, want %v", g, tt.workspace, got, tt.want)
			}
		}
	}
}

func TestCanDeleteOwnMessageAnyRole(t *testing.T) {
	author := uuid.New()
	msg := &domain.Message{UserID: author}
	for _, public := range []bool{true, false} {
		ch := &domain.Channel{IsPublic: public}
		for _, g := range allGlobalRoles {
			for _, w := range allWorkspaceRoles {
				if !CanDelete(msg, ch, author, roleCtx(g, w)) {
					t.Fatalf("author must always delete own message (public=%v, %s/%s)", public, g, w)
				}
			}
		}
	}
}

func TestCanDeleteOthersMessagePublic(t *testing.T) {
	msg := &domain.Message{UserID: uuid.New()}
	ch := &domain.Channel{IsPublic: true}
	acting := uuid.New()

	if CanDelete(msg, ch, acting, roleCtx(domain.GlobalMember, domain.WorkspaceOwner)) {
		t.Fatalf("workspace role must not grant deletes in public channels")
	}
	if !CanDelete(msg, ch, acting, roleCtx(domain.GlobalAdmin, domain.WorkspaceNone)) {
		t.Fatalf("global admin should delete any message in public channels")
	}
	if !CanDelete(msg, ch, acting, roleCtx(domain.GlobalSuperadmin, domain.WorkspaceNone)) {
		t.Fatalf("superadmin should delete any message in public channels")
	}
}

func TestCanDeleteOthersMessagePrivate(t *testing.T) {
	wsID := uuid.New()
	msg := &domain.Message{UserID: uuid.New()}
	ch := &domain.Channel{IsPublic: false, WorkspaceID: &wsID}
	acting := uuid.New()

	if CanDelete(msg, ch, acting, roleCtx(domain.GlobalSuperadmin, domain.WorkspaceMember)) {
		t.Fatalf("global role must not grant deletes in private channels")
	}
	if !CanDelete(msg, ch, acting, roleCtx(domain.GlobalMember, domain.WorkspaceAdmin)) {
		t.Fatalf("workspace admin should delete any message in private channels")
	}
	if !CanDelete(msg, ch, acting, roleCtx(domain.GlobalMember, domain.WorkspaceOwner)) {
		t.Fatalf("workspace owner should delete any message in private channels")
	}
}

func TestCanEditOnlyAuthor(t *testing.T) {
	author := uuid.New()
	msg := &domain.Message{UserID: author}

	if !CanEdit(msg, author) {
		t.Fatalf("author should edit own message")
	}
	if CanEdit(msg, uuid.New()) {
		t.Fatalf("editing must never be delegated")
	}
}

func TestCanDiscover(t *testing.T) {
	private := &domain.Channel{IsPublic: false}
	if CanDiscover(private, roleCtx(domain.GlobalSuperadmin, domain.WorkspaceOwner)) {
		t.Fatalf("private channels are never discoverable through access levels")
	}

	adminsOnly := &domain.Channel{IsPublic: true, AccessLevel: domain.AccessAdminsOnly}
	if CanDiscover(adminsOnly, roleCtx(domain.GlobalMember, domain.WorkspaceOwner)) {
		t.Fatalf("admins-only channel should be hidden from members")
	}
	if !CanDiscover(adminsOnly, roleCtx(domain.GlobalAdmin, domain.WorkspaceNone)) {
		t.Fatalf("admins-only channel should be visible to global admins")
	}

	wsOnly := &domain.Channel{IsPublic: true, AccessLevel: domain.AccessWorkspaceMembers}
	if CanDiscover(wsOnly, roleCtx(domain.GlobalMember, domain.WorkspaceNone)) {
		t.Fatalf("workspace-members channel should be hidden without membership")
	}
	if !CanDiscover(wsOnly, roleCtx(domain.GlobalMember, domain.WorkspaceMember)) {
		t.Fatalf("workspace-members channel should be visible to members")
	}

	open := &domain.Channel{IsPublic: true, AccessLevel: domain.AccessAll}
	if !CanDiscover(open, roleCtx(domain.GlobalMember, domain.WorkspaceNone)) {
		t.Fatalf("open channel should be visible to everyone")
	}
}

func TestCanManage(t *testing.T) {
	public := &domain.Channel{IsPublic: true}
	if CanManage(public, roleCtx(domain.GlobalMember, domain.WorkspaceOwner)) {
		t.Fatalf("workspace roles must not manage public channels")
	}
	if !CanManage(public, roleCtx(domain.GlobalAdmin, domain.WorkspaceNone)) {
		t.Fatalf("global admin should manage public channels")
	}

	private := &domain.Channel{IsPublic: false}
	if CanManage(private, roleCtx(domain.GlobalMember, domain.WorkspaceMember)) {
		t.Fatalf("plain members must not manage private channels")
	}
	if !CanManage(private, roleCtx(domain.GlobalMember, domain.WorkspaceAdmin)) {
		t.Fatalf("workspace admin should manage private channels")
	}
	if !CanManage(private, roleCtx(domain.GlobalSuperadmin, domain.WorkspaceNone)) {
		t.Fatalf("global admin should manage any channel")
	}
}
