package rbac

import (
	"context"
	"errors"

	"github.com/eventstock/stockledger/internal/shared"
)

// ErrNoActor indicates the request carried no actor.
var ErrNoActor = errors.New("rbac: no actor")

// Service resolves effective permissions for actors.
type Service struct {
	overrides map[Role][]string
}

// NewService constructs a Service using the built-in role table.
func NewService() *Service {
	return &Service{}
}

// WithGrants replaces the permissions of one role. Used by tests and deployments that narrow
// the default table.
func (s *Service) WithGrants(role Role, perms ...string) *Service {
	next := &Service{overrides: make(map[Role][]string, len(s.overrides)+1)}
	for k, v := range s.overrides {
		next.overrides[k] = v
	}
	next.overrides[role] = perms
	return next
}

// EffectivePermissions returns the permissions of actor.
func (s *Service) EffectivePermissions(_ context.Context, actor shared.Actor) ([]string, error) {
	if actor.ID == "" {
		return nil, ErrNoActor
	}
	role, err := ParseRole(actor.Role)
	if err != nil {
		return nil, err
	}
	if s != nil {
		if perms, ok := s.overrides[role]; ok {
			return perms, nil
		}
	}
	return role.Permissions(), nil
}
