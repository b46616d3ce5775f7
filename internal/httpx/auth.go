package httpx

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ariefcatur/go-clothing-orders/internal/auth"
)

// Claims are the token claims the API understands. Tokens are issued by the
// identity service; this API only verifies them.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	Secret []byte
}

var errUnauthenticated = errors.New("missing or invalid bearer token")

// Actor verifies an HS256 bearer token and returns the caller it names.
func (a *Authenticator) Actor(r *http.Request) (auth.Actor, error) {
	h := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || raw == "" {
		return auth.Actor{}, errUnauthenticated
	}
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return auth.Actor{}, errors.Join(errUnauthenticated, err)
	}
	if c.Subject == "" {
		return auth.Actor{}, errUnauthenticated
	}
	roles := make([]auth.Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		roles = append(roles, auth.Role(r))
	}
	return auth.NewActor(c.Subject, roles...), nil
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Actor(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errUnauthenticated.Error(), Kind: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := auth.FromContext(r.Context()); !ok || !a.IsAdmin() {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin role required", Kind: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IssueToken signs a token for actor; used by tests and local tooling.
func IssueToken(secret []byte, actor auth.Actor, ttl time.Duration) (string, error) {
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString(secret)
}

func actorFrom(r *http.Request) auth.Actor {
	a, _ := auth.FromContext(r.Context())
	return a
}
