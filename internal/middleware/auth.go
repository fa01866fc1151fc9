package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/havenstay/backend/internal/services"
)

type Role string

const (
	RoleGuest Role = "guest"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
	// BookingID scopes a guest token to one booking. Required for guests,
	// empty for staff.
	BookingID string
}

// IsStaff reports whether the caller may adjudicate payments.
func (id Identity) IsStaff() bool {
	return id.Role == RoleStaff || id.Role == RoleAdmin
}

// CanAccessBooking reports whether the caller may read or pay for bookingID.
// Guest tokens without a booking scope reach nothing.
func (id Identity) CanAccessBooking(bookingID string) bool {
	if id.IsStaff() {
		return true
	}
	return id.Role == RoleGuest && id.BookingID != "" && id.BookingID == bookingID
}

type Claims struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	BookingID string `json:"booking_id,omitempty"`
	jwt.RegisteredClaims
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller placed on the context by Auth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Auth validates the bearer token and places the caller's Identity on the
// request context.
func Auth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
				return
			}

			id, err := validateToken(parts[1], key)
			if err != nil {
				services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		})
	}
}

func validateToken(tokenString string, key []byte) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	if claims.UserID == "" {
		return Identity{}, errors.New("token has no user_id")
	}
	switch claims.Role {
	case RoleGuest, RoleStaff, RoleAdmin:
	default:
		return Identity{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return Identity{UserID: claims.UserID, Role: claims.Role, BookingID: claims.BookingID}, nil
}

// IssueToken signs an HS256 token for id. Used by the benchmark and tests;
// production tokens come from the booking site's login.
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    id.UserID,
		Role:      id.Role,
		BookingID: id.BookingID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
