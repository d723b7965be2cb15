package httpx

import "context"

// Identity is the caller asserted by the gateway headers.
type Identity struct {
	UserID         string
	OrganizationID string
}

// identityKey is an unexported context key type to avoid collisions across packages.
type identityKey struct{}

// WithIdentity returns a child context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity and whether one was set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != "" && id.OrganizationID != ""
}
