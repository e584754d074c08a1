package tenant

import (
	"context"
	"errors"
)

type contextKey string

const tenantKey contextKey = "tenant"

// ErrMissingTenant is returned when an operation runs without tenant scope.
var ErrMissingTenant = errors.New("tenant context is required")

// Context is the capability object that scopes every store operation to one
// tenant. Handlers build it from the authenticated request; stores refuse to
// run without it, so there is no id-only lookup path.
type Context struct {
	TenantID string `json:"tenant_id"`
}

// NewContext returns ctx carrying the tenant scope.
func NewContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, tenantKey, tc)
}

// FromContext extracts the tenant scope from ctx.
func FromContext(ctx context.Context) (Context, error) {
	tc, ok := ctx.Value(tenantKey).(Context)
	if !ok || tc.TenantID == "" {
		return Context{}, ErrMissingTenant
	}
	return tc, nil
}
