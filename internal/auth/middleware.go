package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware authenticates chi-routed requests and stores the principal in
// the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			principal, err := v.Principal(r.Context(), rawToken)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// GinMiddleware is the same check for gin-routed services. The principal is
// placed on the underlying request context so handlers read it the same way
// regardless of router.
func GinMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, err := ExtractTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		principal, err := v.Principal(c.Request.Context(), rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}
