package middleware

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/auth"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/pkg/models"
)

const (
	MessageUnauthorized = "Unauthorized"
	MessageForbidden    = "Forbidden"
)

// TokenVerifier is satisfied by *auth.TokenManager.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthGate rejects requests without a valid bearer token and attaches the
// verified claims to the request context.
func AuthGate(tokens TokenVerifier, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httputil.WriteMessage(w, http.StatusUnauthorized, MessageUnauthorized)
				return
			}

			claims, err := tokens.Verify(token)
			if err != nil {
				logger.WithField("path", r.URL.Path).Debug("Rejected bearer token")
				httputil.WriteMessage(w, http.StatusUnauthorized, MessageUnauthorized)
				return
			}

			logger.WithFields(logrus.Fields{
				"user_id": claims.UserID,
				"role":    claims.Role,
				"path":    r.URL.Path,
			}).Debug("Authenticated request")

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken splits the header at the first space. The scheme must be
// Bearer and the remainder non-empty.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireRole must run behind AuthGate. A request without claims is
// unauthenticated; a role outside roles is forbidden.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFrom(r.Context())
			if !ok {
				httputil.WriteMessage(w, http.StatusUnauthorized, MessageUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				httputil.WriteMessage(w, http.StatusForbidden, MessageForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
