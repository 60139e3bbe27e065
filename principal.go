package admission

import (
	"context"

	"github.com/google/uuid"
	"github.com/goliatone/go-errors"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	ID    string
	Email string
	Roles []string
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// PrincipalFromUser builds the request identity from a stored user record.
func PrincipalFromUser(user *User) *Principal {
	if user == nil {
		return nil
	}
	return &Principal{
		ID:    user.ID.String(),
		Email: user.Email,
		Roles: append([]string{}, user.Roles...),
	}
}

// PrincipalResolver turns a token subject into a live Principal. Resolution
// happens on every request so role changes and deletions apply immediately.
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject string) (*Principal, error)
}

type PrincipalResolverFunc func(ctx context.Context, subject string) (*Principal, error)

func (f PrincipalResolverFunc) Resolve(ctx context.Context, subject string) (*Principal, error) {
	return f(ctx, subject)
}

// StoreResolver resolves principals against an IdentityStore.
type StoreResolver struct {
	store IdentityStore
}

func NewStoreResolver(store IdentityStore) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(ctx context.Context, subject string) (*Principal, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "token subject is not a valid identifier").
			WithTextCode(TextCodeTokenMalformed)
	}

	user, err := r.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, ErrIdentityNotFound
	}

	return PrincipalFromUser(user), nil
}
