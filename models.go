package admission

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemberRole is a role name granted to a member
type MemberRole = string

const (
	// RoleMember is the baseline role every account receives
	RoleMember MemberRole = "member"
	// RoleStaff can manage member-facing content
	RoleStaff MemberRole = "staff"
	// RoleAdmin may reach the administrative surface
	RoleAdmin MemberRole = "admin"
)

// User is the membership account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Name          string         `bun:"name" json:"name,omitempty"`
	Roles         []string       `bun:"roles,array" json:"roles,omitempty"`
	Provider      string         `bun:"provider" json:"provider,omitempty"`
	ProviderID    string         `bun:"provider_id" json:"provider_id,omitempty"`
	Picture       string         `bun:"picture" json:"picture,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	LoggedInAt    *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasRole reports whether the stored record carries the given role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}
