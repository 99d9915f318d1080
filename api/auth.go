package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Identity is the verified caller, extracted from the provider-signed token.
// Admin comes from the token for convenience only; every admin operation is
// re-checked against the user table.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Admin    bool
}

type identityClaims struct {
	jwt.Claims
	Email    string `json:"email"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

// TokenVerifier verifies HS256 identity tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the given shared secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Verify parses and validates a raw token and returns the caller identity.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Identity{}, fmt.Errorf("parsing token: %w", err)
	}
	var claims identityClaims
	if err := tok.Claims(v.secret, &claims); err != nil {
		return Identity{}, fmt.Errorf("verifying token signature: %w", err)
	}
	if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return Identity{}, fmt.Errorf("validating token claims: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}
	return Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Admin:    claims.Admin,
	}, nil
}

// Sign issues a token for the identity, used by tests and the embedded
// example in place of a real identity provider.
func (v *TokenVerifier) Sign(id Identity, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: v.secret},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}
	now := time.Now()
	claims := identityClaims{
		Claims: jwt.Claims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    id.Email,
		Username: id.Username,
		Admin:    id.Admin,
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return raw, nil
}

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the verified identity stored by AuthMiddleware.
func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// AuthMiddleware verifies the bearer token and stores the caller identity on
// the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := a.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	// Websocket clients cannot set headers; they pass the token in the
	// query string instead.
	return r.URL.Query().Get("token")
}
