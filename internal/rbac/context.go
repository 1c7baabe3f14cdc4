// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package rbac

import (
	"context"

	"github.com/taskora/taskora/internal/platform/ctxkey"
)

// WithPrincipal returns a context carrying the authenticated principal.
// The authentication middleware is the only writer.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxkey.KeyPrincipal, p)
}

// PrincipalFromContext extracts the authenticated principal from the context.
// The boolean is false on unauthenticated requests, i.e. routes mounted
// outside the authentication middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxkey.KeyPrincipal).(*Principal)
	return p, ok && p != nil
}
