package auth

import "fmt"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

type Capability string

const (
	CapCheckout      Capability = "order:checkout"
	CapViewOrders    Capability = "order:read"
	CapManageCart    Capability = "cart:write"
	CapManageCatalog Capability = "catalog:write"
)

var capabilities = map[Role]map[Capability]bool{
	RoleBuyer:  {CapCheckout: true, CapViewOrders: true, CapManageCart: true},
	RoleSeller: {CapManageCatalog: true},
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := capabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Can(c Capability) bool { return capabilities[r][c] }

// Identity is the authenticated caller, passed explicitly into services.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}
