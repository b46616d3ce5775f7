package auth

import "context"

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleCustomer Role = "Customer"
)

// Actor is the caller of an operation: who they are and which roles they
// hold. It is passed explicitly into every order and inventory operation.
type Actor struct {
	ID    string
	Roles []Role
}

func NewActor(id string, roles ...Role) Actor {
	return Actor{ID: id, Roles: roles}
}

// System is used for internal callers (seeding, background jobs).
var System = Actor{ID: "system", Roles: []Role{RoleAdmin}}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool    { return a.HasRole(RoleAdmin) }
func (a Actor) IsCustomer() bool { return a.HasRole(RoleCustomer) }

// Owns reports whether the actor is the given customer.
func (a Actor) Owns(customerID string) bool {
	return a.ID != "" && a.ID == customerID
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
