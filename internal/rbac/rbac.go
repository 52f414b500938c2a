package rbac

type Role string
type Action string

const (
	RoleViewer Role = "Viewer"
	RoleEditor Role = "Editor"
	RoleAdmin  Role = "Admin"
)

const (
	ActionRead   Action = "read"
	ActionEdit   Action = "edit"
	ActionCursor Action = "cursor"
	ActionSave   Action = "save"
)

// Identity is what the session collaborator hands to the document core.
type Identity struct {
	User string
	Role Role
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin, RoleEditor:
		return true
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// ReadOnly reports whether the identity may only observe the document.
func (id Identity) ReadOnly() bool {
	return !Can(id.Role, ActionEdit)
}

// Normalize maps a role string onto a known role. Unknown values fall back
// to the least privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	}
	switch role {
	case "viewer":
		return RoleViewer
	case "editor":
		return RoleEditor
	case "admin":
		return RoleAdmin
	default:
		return RoleViewer
	}
}
