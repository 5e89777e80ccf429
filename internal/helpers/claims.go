package helpers

import (
	"github.com/joshua-takyi/eventix/internal/models"
)

// EnhancedClaims is the authenticated caller as seen by handlers, resolved
// from either a local token or a Supabase session.
type EnhancedClaims struct {
	UserID   string      `json:"id"`
	Email    string      `json:"email,omitempty"`
	Name     string      `json:"name,omitempty"`
	Role     models.Role `json:"role"`
	Provider string      `json:"provider,omitempty"`
}

// Helper methods for role checking
func (ec *EnhancedClaims) IsAdmin() bool {
	return ec.Role == models.RoleAdmin
}

func (ec *EnhancedClaims) IsOrganizer() bool {
	return ec.Role == models.RoleOrganizer
}

// CanScan reports whether the caller may validate tickets at the door of any event.
func (ec *EnhancedClaims) CanScan() bool {
	return ec.HasRole(models.RoleScanner, models.RoleStaff, models.RoleAdmin)
}

func (ec *EnhancedClaims) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if ec.Role == r {
			return true
		}
	}
	return false
}

func (ec *EnhancedClaims) IsOwner(userID string) bool {
	return ec.UserID == userID
}

func (ec *EnhancedClaims) GetSafeRole() models.Role {
	if ec.Role == "" {
		return models.RoleUser
	}
	return ec.Role
}
