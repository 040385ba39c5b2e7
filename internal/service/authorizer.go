package service

import (
	"context"

	"github.com/scaleserve/scaleserve/internal/entity"
)

// AuthResult carries an authorization decision. A nil result means proceed.
type AuthResult struct {
	// Status is an HTTP-style code. Below 300 means allowed.
	Status int
	// Challenge is sent as WWW-Authenticate on 401 results.
	Challenge string
	// Location is the redirect target on 3xx results.
	Location string
}

func (r *AuthResult) Allowed() bool {
	return r == nil || r.Status < 300
}

// Deny converts a denying result into the error the handlers surface.
func (r *AuthResult) Deny() error {
	return &entity.AccessDeniedError{
		Status:    r.Status,
		Challenge: r.Challenge,
		Location:  r.Location,
	}
}

// Authorizer is consulted twice per request: once before any I/O, and again
// once image characteristics are known.
type Authorizer interface {
	// AuthorizeBeforeAccess decides on identifier alone, before any source
	// or cache I/O.
	AuthorizeBeforeAccess(ctx context.Context, meta entity.MetaIdentifier) (*AuthResult, error)
	// Authorize decides with image characteristics available, for policies
	// depending on content such as size restrictions.
	Authorize(ctx context.Context, meta entity.MetaIdentifier, info *entity.Info) (*AuthResult, error)
}

// AllowAllAuthorizer is the permissive default.
type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) AuthorizeBeforeAccess(ctx context.Context, meta entity.MetaIdentifier) (*AuthResult, error) {
	return nil, nil
}

func (AllowAllAuthorizer) Authorize(ctx context.Context, meta entity.MetaIdentifier, info *entity.Info) (*AuthResult, error) {
	return nil, nil
}
