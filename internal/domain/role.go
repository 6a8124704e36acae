package domain

// GlobalRole is the caller's platform-wide role, resolved by the
// identity service per request.
type GlobalRole string

const (
	GlobalMember     GlobalRole = "member"
	GlobalAdmin      GlobalRole = "admin"
	GlobalSuperadmin GlobalRole = "superadmin"
)

// WorkspaceRole is the caller's role inside the workspace that scopes
// the current action. WorkspaceNone means the caller has no membership.
type WorkspaceRole string

const (
	WorkspaceMember WorkspaceRole = "member"
	WorkspaceAdmin  WorkspaceRole = "admin"
	WorkspaceOwner  WorkspaceRole = "owner"
	WorkspaceNone   WorkspaceRole = "none"
)

// RoleContext bundles both roles for one permission check. It is built
// once from the identity service response and treated as immutable;
// roles are never inferred from partial data.
type RoleContext struct {
	GlobalRole    GlobalRole    `json:"globalRole"`
	WorkspaceRole WorkspaceRole `json:"workspaceRole"`
}

// IsGlobalAdmin reports whether the caller holds an elevated platform
// role.
func (rc RoleContext) IsGlobalAdmin() bool {
	return rc.GlobalRole == GlobalAdmin || rc.GlobalRole == GlobalSuperadmin
}

// IsWorkspaceAdmin reports whether the caller holds an elevated role in
// the current workspace.
func (rc RoleContext) IsWorkspaceAdmin() bool {
	return rc.WorkspaceRole == WorkspaceAdmin || rc.WorkspaceRole == WorkspaceOwner
}
