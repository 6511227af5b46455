package rbac

import (
	"fmt"
	"strings"
)

// Role is the coarse access level of an actor.
type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleInventoryManager Role = "INVENTORY_MANAGER"
	RoleViewer           Role = "VIEWER"
)

// Permission names checked by route middleware.
const (
	PermStockView   = "stock.view"
	PermStockManage = "stock.manage"
)

// ParseRole normalises raw into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleInventoryManager, RoleViewer:
		return role, nil
	}
	return "", fmt.Errorf("rbac: unknown role %q", raw)
}

// Permissions returns the permissions granted to r.
func (r Role) Permissions() []string {
	switch r {
	case RoleAdmin, RoleInventoryManager:
		return []string{PermStockView, PermStockManage}
	case RoleViewer:
		return []string{PermStockView}
	}
	return nil
}

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleInventoryManager, RoleViewer}
}
