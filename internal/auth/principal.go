package auth

import "context"

// Roles carried in the token's role claim.
const (
	RolePromoter = "PROMOTER"
	RoleScanner  = "SCANNER"
	RoleManager  = "MANAGER"
)

// Principal is the authenticated caller. It only carries identity and role;
// resolving the matching promoter/scanner profile (and with it the tenant
// scope) is the services' job.
type Principal struct {
	UserID string
	Role   string
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal set by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
