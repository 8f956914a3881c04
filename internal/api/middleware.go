/**
 * @description
 * Authentication, authorization and rate limiting middleware for the
 * subscription-service HTTP surface.
 *
 * @notes
 * - Tokens are HS256 bearer JWTs shared with the other membership services;
 *   tenantId is extracted from the same set of claim names those services
 *   use.
 * - The CRM guard assumes AuthMiddleware already ran.
 */
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/projectshell/subscription-service/internal/app"
	"github.com/projectshell/subscription-service/internal/domain"
)

type contextKey string

const authUserContextKey = contextKey("authUser")

// AuthUser is the identity extracted from a validated bearer token.
type AuthUser struct {
	UserID   string
	TenantID string
	UserType string
}

// AuthMiddleware validates HS256 bearer tokens and injects the caller's
// identity into the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondFail(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondFail(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				respondFail(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondFail(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			user := AuthUser{
				UserID:   firstStringClaim(claims, "sub", "id"),
				TenantID: firstStringClaim(claims, "tenantId", "tid", "extension_tenantId", "tenant"),
				UserType: firstStringClaim(claims, "userType"),
			}

			ctx := context.WithValue(r.Context(), authUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCRM rejects callers whose token is not a CRM user token.
func RequireCRM(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			respondFail(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if user.UserType != domain.UserTypeCRM {
			respondFail(w, http.StatusForbidden, "Access denied. CRM users only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware bounds per-user request rates on the CRM endpoints.
// A nil limiter disables limiting.
func RateLimitMiddleware(limiter *app.RedisRateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, user.UserID, limit, window)
			if err != nil {
				// The limiter is protective, not load-bearing; let the
				// request through when Redis is unreachable.
				log.Printf("WARN: rate limiter unavailable for scope %s: %v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if limit > 0 && count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondFail(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(authUserContextKey).(AuthUser)
	return user, ok
}

func firstStringClaim(claims jwt.MapClaims, names ...string) string {
	for _, name := range names {
		if value, ok := claims[name].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
