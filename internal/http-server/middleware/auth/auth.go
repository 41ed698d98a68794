package authmiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/http-server/handlers"
	"github.com/zanzhit/securecam/internal/lib/api/response"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type contextKey string

const (
	PrincipalContextKey contextKey = "principal"
)

type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (models.Principal, error)
}

// JWTAuth resolves the bearer token into the calling user.
func JWTAuth(log *slog.Logger, auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.auth.JWTAuth"

			token, ok := bearer(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				handlers.Error(w, r, http.StatusUnauthorized, response.Error("not authenticated", middleware.GetReqID(r.Context())))
				return
			}

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, errs.ErrUnauthorized) {
					w.Header().Set("WWW-Authenticate", "Bearer")
					handlers.Error(w, r, http.StatusUnauthorized, response.Error("could not validate credentials", middleware.GetReqID(r.Context())))
					return
				}

				log.Error("failed to authenticate request",
					slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				)

				handlers.ServiceError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok || !principal.User.IsAdmin {
			handlers.Error(w, r, http.StatusForbidden, response.Error("admin privileges required", middleware.GetReqID(r.Context())))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(models.Principal)
	return p, ok
}

// Caller returns the policy view of the authenticated user. Without one it is
// an anonymous caller that every rule denies.
func Caller(r *http.Request) policy.Caller {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		return policy.Caller{}
	}

	return policy.FromPrincipal(p)
}

// WithPrincipal stores p in ctx the way JWTAuth does.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
