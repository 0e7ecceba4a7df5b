package internal

import (
	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/ctxhelper"
	"github.com/derWhity/medstock/internal/log"
	"github.com/go-kit/kit/endpoint"
	"golang.org/x/net/context"
)

// EnsureUserLoggedIn is a middleware that checks if there is a valid user session for the current call
func EnsureUserLoggedIn(next endpoint.Endpoint) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		if ctxhelper.Session(ctx) == nil {
			// Nobody logged in
			return nil, ErrNotLoggedIn
		}
		return next(ctx, request)
	}
}

// EnsureRequirement creates a middleware that only lets calls pass whose session meets the requirement
func EnsureRequirement(policy access.Policy, req access.Requirement) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			sess := ctxhelper.Session(ctx)
			d := policy.Evaluate(sess, req)
			if d.Allowed {
				return next(ctx, request)
			}
			if d.Reason == access.ReasonNotLoggedIn {
				return nil, ErrNotLoggedIn
			}
			ctxhelper.Logger(ctx).WithField(log.FldPermission, req.String()).Info("Call denied")
			return nil, ErrNotPermitted
		}
	}
}

// EnsureAdmin creates a middleware that only lets administrators pass
func EnsureAdmin(policy access.Policy) endpoint.Middleware {
	return EnsureRequirement(policy, access.Admin())
}
