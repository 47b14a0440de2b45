package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"
)

type contextKey string

const subjectKey contextKey = "subject"

// NewVerifier discovers the issuer's keys. Tokens are checked for issuer,
// expiry and signature only; no client ID is required.
func NewVerifier(ctx context.Context, issuer string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return provider.Verifier(&oidc.Config{SkipClientIDCheck: true}), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject in the request context.
func Middleware(verifier *oidc.IDTokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := BearerToken(r)
			if err != nil {
				reject(w, r, log, err.Error())
				return
			}

			idToken, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				reject(w, r, log, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, idToken.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, log *logger.Logger, msg string) {
	log.LogSecurity("UNAUTHORIZED", fmt.Sprintf("%s %s: %s", r.Method, r.URL.Path, msg))
	if err := utils.WriteError(w, http.StatusUnauthorized, msg); err != nil {
		log.Error("AUTH", fmt.Sprintf("Failed to encode error response: %v", err))
	}
}

// Subject returns the authenticated token subject, if any.
func Subject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}
